package tools

import (
	"fmt"
	"sort"
	"sync"
)

// Permission enumerates the capabilities a tool group may require from its
// host.
type Permission string

const (
	// PermissionHostAccess marks groups whose tools touch the local host
	// (filesystem, processes).
	PermissionHostAccess Permission = "HOST_ACCESS"
	// PermissionInternetAccess marks groups whose tools reach external
	// networks.
	PermissionInternetAccess Permission = "INTERNET_ACCESS"
)

type (
	// Group bundles related tools under a role with provenance and permission
	// metadata. Agents reference groups by role; the platform resolves the
	// role to a concrete provider at invocation construction time.
	Group struct {
		// Role is the functional identifier agents request (e.g. "web",
		// "math").
		Role string
		// Name is the concrete group implementation name.
		Name string
		// Provider identifies who supplies the group.
		Provider string
		// Version is the group implementation version.
		Version string
		// Permissions lists the capabilities the group requires.
		Permissions map[Permission]bool
		// Tools are the members of the group.
		Tools []*Tool
	}

	// GroupResolver resolves group roles to registered groups. It is
	// process-wide, populated at platform start, and read-mostly afterwards.
	GroupResolver struct {
		mu     sync.RWMutex
		byRole map[string]*Group
	}

	// ResolutionFailure describes an unresolvable group requirement in a form
	// suitable for surfacing to callers.
	ResolutionFailure struct {
		Role    string
		Message string
	}
)

func (f ResolutionFailure) Error() string {
	return fmt.Sprintf("tool group %q: %s", f.Role, f.Message)
}

// NewGroupResolver returns an empty resolver.
func NewGroupResolver() *GroupResolver {
	return &GroupResolver{byRole: make(map[string]*Group)}
}

// Register adds a group keyed by its role. Duplicate roles fail so wiring
// mistakes surface at startup rather than at planning time.
func (r *GroupResolver) Register(g *Group) error {
	if g == nil || g.Role == "" {
		return fmt.Errorf("tools: group role is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byRole[g.Role]; dup {
		return fmt.Errorf("tools: group role %q already registered", g.Role)
	}
	r.byRole[g.Role] = g
	return nil
}

// Resolve returns the group registered under role or a ResolutionFailure
// listing the known roles.
func (r *GroupResolver) Resolve(role string) (*Group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if g, ok := r.byRole[role]; ok {
		return g, nil
	}
	known := make([]string, 0, len(r.byRole))
	for k := range r.byRole {
		known = append(known, k)
	}
	sort.Strings(known)
	return nil, ResolutionFailure{
		Role:    role,
		Message: fmt.Sprintf("no provider registered (known roles: %v)", known),
	}
}

// ToolsFor collects the tools of every requested role. Unresolvable roles
// abort with the corresponding failure.
func (r *GroupResolver) ToolsFor(roles []string) ([]*Tool, error) {
	var out []*Tool
	seen := map[Ident]bool{}
	for _, role := range roles {
		g, err := r.Resolve(role)
		if err != nil {
			return nil, err
		}
		for _, t := range g.Tools {
			if seen[t.Name()] {
				continue
			}
			seen[t.Name()] = true
			out = append(out, t)
		}
	}
	return out, nil
}
