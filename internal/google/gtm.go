package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	tagmanager "google.golang.org/api/tagmanager/v2"

	"github.com/leadlift/leadlift/internal/logx"
	"github.com/leadlift/leadlift/internal/server/db"
)

// TagGraph builds the dependency-ordered graph of GTM entities that
// realizes one tracking definition: workspace → variables → trigger →
// tag (and receiving client for server containers) → published version.
// Every step persists the created id before the next one runs, so a failed
// run resumes where it stopped instead of recreating entities.
type TagGraph struct {
	store *db.Store

	// Endpoint overrides the Tag Manager API base URL in tests.
	Endpoint string
}

// NewTagGraph creates a tag graph builder backed by the given store.
func NewTagGraph(store *db.Store) *TagGraph {
	return &TagGraph{store: store}
}

func (g *TagGraph) service(ctx context.Context, hc *http.Client) (*tagmanager.Service, error) {
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if g.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(g.Endpoint))
	}
	svc, err := tagmanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create tagmanager service: %w", err)
	}
	return svc, nil
}

func containerPath(tr *db.Tracking) string {
	return "accounts/" + tr.GTMAccount + "/containers/" + tr.GTMContainer
}

func workspacePath(tr *db.Tracking) string {
	return containerPath(tr) + "/workspaces/" + tr.WorkspaceID
}

// Entity names within the workspace. Tracking-specific so teardown never
// deletes something another definition still references.
func (g *TagGraph) triggerName(tr *db.Tracking) string  { return ResourceName(tr.Name) }
func (g *TagGraph) tagName(tr *db.Tracking) string      { return ResourceName(tr.Name) + " Tag" }
func (g *TagGraph) clientName(tr *db.Tracking) string   { return ResourceName(tr.Name) + " Client" }
func (g *TagGraph) pathVarName(tr *db.Tracking) string  { return ResourceName(tr.Name) + " Page Path" }
func (g *TagGraph) eventVarName(tr *db.Tracking) string { return ResourceName(tr.Name) + " Event" }

// persist writes the tracking row after a state transition.
func (g *TagGraph) persist(tr *db.Tracking) error {
	return g.store.UpdateTrackingArtifacts(tr)
}

// fail records the failed state with the last remote error and the count of
// entities already created, then returns err unchanged.
func (g *TagGraph) fail(tr *db.Tracking, err error) error {
	tr.Status = db.StatusFailed
	tr.LastError = err.Error()
	if perr := g.persist(tr); perr != nil {
		logx.Errorf("persist failed state for tracking=%s: %v", tr.TrackingID, perr)
	}
	return err
}

// Build drives the tracking definition through the provisioning state
// machine. Safe to call again after any failure: every entity is resolved
// find-or-create, keyed by its deterministic name inside the workspace.
func (g *TagGraph) Build(ctx context.Context, cred *Live, tenant *db.Tenant, tr *db.Tracking) error {
	if tr.Status == db.StatusActive && tr.TriggerID != "" {
		// Already provisioned; the recorded ids are authoritative.
		return nil
	}

	hc, err := cred.Client(ctx)
	if err != nil {
		return err
	}
	svc, err := g.service(ctx, hc)
	if err != nil {
		return err
	}

	if err := g.ensureWorkspace(ctx, svc, tr); err != nil {
		return g.fail(tr, err)
	}
	if err := g.ensureVariables(ctx, svc, tr); err != nil {
		return g.fail(tr, err)
	}
	if err := g.ensureTrigger(ctx, svc, tr); err != nil {
		return g.fail(tr, err)
	}
	if err := g.ensureTags(ctx, svc, tenant, tr); err != nil {
		return g.fail(tr, err)
	}
	if err := g.publish(ctx, svc, tr); err != nil {
		return g.fail(tr, err)
	}

	tr.Status = db.StatusActive
	tr.LastError = ""
	if err := g.persist(tr); err != nil {
		return err
	}
	logx.Infof("tracking %s active: workspace=%s trigger=%s tags=%v version=%s",
		tr.TrackingID, tr.WorkspaceID, tr.TriggerID, tr.TagIDs, tr.VersionID)
	return nil
}

// ensureWorkspace finds or creates the application's dedicated workspace in
// the target container.
func (g *TagGraph) ensureWorkspace(ctx context.Context, svc *tagmanager.Service, tr *db.Tracking) error {
	loc := Locator{
		Lookup: func() (string, error) { return tr.WorkspaceID, nil },
		Search: func(ctx context.Context) (string, error) {
			resp, err := svc.Accounts.Containers.Workspaces.List(containerPath(tr)).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("gtm.list_workspaces", err)
			}
			for _, ws := range resp.Workspace {
				if ws.Name == productName {
					return ws.WorkspaceId, nil
				}
			}
			return "", nil
		},
		Create: func(ctx context.Context) (string, error) {
			ws, err := svc.Accounts.Containers.Workspaces.Create(containerPath(tr), &tagmanager.Workspace{
				Name:        productName,
				Description: "Managed by Leadlift. Entities here are provisioned automatically.",
			}).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("gtm.create_workspace", err)
			}
			return ws.WorkspaceId, nil
		},
		Persist: func(id string) error {
			tr.WorkspaceID = id
			tr.Status = db.StatusWorkspaceReady
			return g.persist(tr)
		},
	}
	_, err := loc.Resolve(ctx)
	return err
}

// ensureVariables creates the variables the trigger's filter and the tag
// reference. Variables always exist before anything that names them.
func (g *TagGraph) ensureVariables(ctx context.Context, svc *tagmanager.Service, tr *db.Tracking) error {
	if len(tr.VariableIDs) > 0 {
		return nil
	}

	var wanted []*tagmanager.Variable
	if tr.PagePath != "" {
		wanted = append(wanted, &tagmanager.Variable{
			Name: g.pathVarName(tr),
			Type: "u",
			Parameter: []*tagmanager.Parameter{
				{Type: "template", Key: "component", Value: "PATH"},
			},
		})
	}
	wanted = append(wanted, &tagmanager.Variable{
		Name: g.eventVarName(tr),
		Type: "c",
		Parameter: []*tagmanager.Parameter{
			{Type: "template", Key: "value", Value: tr.EventName},
		},
	})

	existing, err := svc.Accounts.Containers.Workspaces.Variables.List(workspacePath(tr)).Context(ctx).Do()
	if err != nil {
		return classifyAPI("gtm.list_variables", err)
	}
	byName := make(map[string]string)
	for _, v := range existing.Variable {
		byName[v.Name] = v.VariableId
	}

	var ids []string
	for _, v := range wanted {
		if id, ok := byName[v.Name]; ok {
			ids = append(ids, id)
			continue
		}
		created, err := svc.Accounts.Containers.Workspaces.Variables.Create(workspacePath(tr), v).Context(ctx).Do()
		if err != nil {
			return classifyAPI("gtm.create_variable", err)
		}
		ids = append(ids, created.VariableId)
		tr.CreatedEntities++
	}

	tr.VariableIDs = ids
	return g.persist(tr)
}

// ensureTrigger creates the firing trigger. Custom-event trigger when the
// definition names an event, pageview trigger otherwise; either is filtered
// on the page path when one is set.
func (g *TagGraph) ensureTrigger(ctx context.Context, svc *tagmanager.Service, tr *db.Tracking) error {
	loc := Locator{
		Lookup: func() (string, error) { return tr.TriggerID, nil },
		Search: func(ctx context.Context) (string, error) {
			resp, err := svc.Accounts.Containers.Workspaces.Triggers.List(workspacePath(tr)).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("gtm.list_triggers", err)
			}
			for _, t := range resp.Trigger {
				if t.Name == g.triggerName(tr) {
					return t.TriggerId, nil
				}
			}
			return "", nil
		},
		Create: func(ctx context.Context) (string, error) {
			trigger := &tagmanager.Trigger{Name: g.triggerName(tr)}
			pathFilter := func() *tagmanager.Condition {
				return &tagmanager.Condition{
					Type: "equals",
					Parameter: []*tagmanager.Parameter{
						{Type: "template", Key: "arg0", Value: "{{" + g.pathVarName(tr) + "}}"},
						{Type: "template", Key: "arg1", Value: tr.PagePath},
					},
				}
			}
			if tr.EventName != "" {
				trigger.Type = "customEvent"
				trigger.CustomEventFilter = []*tagmanager.Condition{{
					Type: "equals",
					Parameter: []*tagmanager.Parameter{
						{Type: "template", Key: "arg0", Value: "{{_event}}"},
						{Type: "template", Key: "arg1", Value: tr.EventName},
					},
				}}
				if tr.PagePath != "" {
					trigger.Filter = []*tagmanager.Condition{pathFilter()}
				}
			} else {
				trigger.Type = "pageview"
				trigger.Filter = []*tagmanager.Condition{pathFilter()}
			}
			created, err := svc.Accounts.Containers.Workspaces.Triggers.Create(workspacePath(tr), trigger).Context(ctx).Do()
			if err != nil {
				return "", classifyAPI("gtm.create_trigger", err)
			}
			tr.CreatedEntities++
			return created.TriggerId, nil
		},
		Persist: func(id string) error {
			tr.TriggerID = id
			tr.Status = db.StatusTriggersCreated
			return g.persist(tr)
		},
	}
	_, err := loc.Resolve(ctx)
	return err
}

// ensureTags creates the GA4 event tag firing on the trigger, and for
// server-side containers the receiving client as well.
func (g *TagGraph) ensureTags(ctx context.Context, svc *tagmanager.Service, tenant *db.Tenant, tr *db.Tracking) error {
	if len(tr.TagIDs) == 0 {
		resp, err := svc.Accounts.Containers.Workspaces.Tags.List(workspacePath(tr)).Context(ctx).Do()
		if err != nil {
			return classifyAPI("gtm.list_tags", err)
		}
		var tagID string
		for _, t := range resp.Tag {
			if t.Name == g.tagName(tr) {
				tagID = t.TagId
				break
			}
		}
		if tagID == "" {
			tag := &tagmanager.Tag{
				Name:            g.tagName(tr),
				Type:            "gaawe",
				FiringTriggerId: []string{tr.TriggerID},
				Parameter: []*tagmanager.Parameter{
					{Type: "template", Key: "eventName", Value: "{{" + g.eventVarName(tr) + "}}"},
					{Type: "template", Key: "measurementIdOverride", Value: tenant.GAMeasurementID},
				},
			}
			created, err := svc.Accounts.Containers.Workspaces.Tags.Create(workspacePath(tr), tag).Context(ctx).Do()
			if err != nil {
				return classifyAPI("gtm.create_tag", err)
			}
			tagID = created.TagId
			tr.CreatedEntities++
		}
		tr.TagIDs = []string{tagID}
	}

	if tr.ServerContainer && tr.ClientID == "" {
		resp, err := svc.Accounts.Containers.Workspaces.Clients.List(workspacePath(tr)).Context(ctx).Do()
		if err != nil {
			return classifyAPI("gtm.list_clients", err)
		}
		var clientID string
		for _, c := range resp.Client {
			if c.Name == g.clientName(tr) {
				clientID = c.ClientId
				break
			}
		}
		if clientID == "" {
			created, err := svc.Accounts.Containers.Workspaces.Clients.Create(workspacePath(tr), &tagmanager.Client{
				Name: g.clientName(tr),
				Type: "gaaw_client",
			}).Context(ctx).Do()
			if err != nil {
				return classifyAPI("gtm.create_client", err)
			}
			clientID = created.ClientId
			tr.CreatedEntities++
		}
		tr.ClientID = clientID
	}

	tr.Status = db.StatusTagsCreated
	return g.persist(tr)
}

// publish advances the container to a new version covering the workspace.
// This is the point at which changes go live on the tracked website.
func (g *TagGraph) publish(ctx context.Context, svc *tagmanager.Service, tr *db.Tracking) error {
	if tr.VersionID == "" {
		resp, err := svc.Accounts.Containers.Workspaces.CreateVersion(workspacePath(tr),
			&tagmanager.CreateContainerVersionRequestVersionOptions{
				Name:  ResourceName(tr.Name),
				Notes: "Provisioned by Leadlift",
			}).Context(ctx).Do()
		if err != nil {
			return classifyAPI("gtm.create_version", err)
		}
		if resp.CompilerError || resp.ContainerVersion == nil {
			return Errf(KindRejected, "gtm.create_version", "container version compilation failed")
		}
		tr.VersionID = resp.ContainerVersion.ContainerVersionId
		if err := g.persist(tr); err != nil {
			return err
		}
	}

	versionPath := containerPath(tr) + "/versions/" + tr.VersionID
	if _, err := svc.Accounts.Containers.Versions.Publish(versionPath).Context(ctx).Do(); err != nil {
		return classifyAPI("gtm.publish", err)
	}
	tr.Status = db.StatusPublished
	return g.persist(tr)
}

// notFound reports whether err is the remote telling us the entity is
// already gone.
func notFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

// Teardown deletes the tracking definition's remote entities in reverse
// dependency order: tags first, then the client, the trigger, and finally
// the variables only the trigger referenced. Each deletion is persisted so
// a partial teardown resumes cleanly. Entities already gone remotely are
// treated as deleted.
func (g *TagGraph) Teardown(ctx context.Context, cred *Live, tr *db.Tracking) error {
	if tr.WorkspaceID == "" {
		return nil
	}
	hc, err := cred.Client(ctx)
	if err != nil {
		return err
	}
	svc, err := g.service(ctx, hc)
	if err != nil {
		return err
	}
	ws := workspacePath(tr)

	for len(tr.TagIDs) > 0 {
		id := tr.TagIDs[len(tr.TagIDs)-1]
		if err := svc.Accounts.Containers.Workspaces.Tags.Delete(ws + "/tags/" + id).Context(ctx).Do(); err != nil && !notFound(err) {
			return classifyAPI("gtm.delete_tag", err)
		}
		tr.TagIDs = tr.TagIDs[:len(tr.TagIDs)-1]
		if err := g.persist(tr); err != nil {
			return err
		}
	}

	if tr.ClientID != "" {
		if err := svc.Accounts.Containers.Workspaces.Clients.Delete(ws + "/clients/" + tr.ClientID).Context(ctx).Do(); err != nil && !notFound(err) {
			return classifyAPI("gtm.delete_client", err)
		}
		tr.ClientID = ""
		if err := g.persist(tr); err != nil {
			return err
		}
	}

	if tr.TriggerID != "" {
		if err := svc.Accounts.Containers.Workspaces.Triggers.Delete(ws + "/triggers/" + tr.TriggerID).Context(ctx).Do(); err != nil && !notFound(err) {
			return classifyAPI("gtm.delete_trigger", err)
		}
		tr.TriggerID = ""
		if err := g.persist(tr); err != nil {
			return err
		}
	}

	for len(tr.VariableIDs) > 0 {
		id := tr.VariableIDs[len(tr.VariableIDs)-1]
		if err := svc.Accounts.Containers.Workspaces.Variables.Delete(ws + "/variables/" + id).Context(ctx).Do(); err != nil && !notFound(err) {
			return classifyAPI("gtm.delete_variable", err)
		}
		tr.VariableIDs = tr.VariableIDs[:len(tr.VariableIDs)-1]
		if err := g.persist(tr); err != nil {
			return err
		}
	}

	return nil
}
