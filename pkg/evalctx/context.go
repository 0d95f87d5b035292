package evalctx

import (
	"strings"
	"time"
)

// Context is the structured identity/attribute bag evaluated against a flag.
// All sub-contexts are optional; a zero Context resolves every path to
// absence.
type Context struct {
	User        *User
	Device      *Device
	Request     *Request
	Application *Application
	Session     *Session
	Environment *Environment

	// Custom is a free-form property bag addressed as "custom.<key>".
	Custom map[string]any

	// Groups the subject belongs to, in the caller's order. Group override
	// matching follows this order, first match wins.
	Groups []string
}

// User identifies the subject of the evaluation.
type User struct {
	ID          string
	AnonymousID string
	Email       string
	Name        string
	Plan        string
	Country     string
	Attributes  map[string]any
}

// Device describes the client device.
type Device struct {
	ID           string
	OS           string
	OSVersion    string
	Model        string
	Manufacturer string
	Locale       string
	Attributes   map[string]any
}

// Request carries per-request transport attributes.
type Request struct {
	IP         string
	UserAgent  string
	Path       string
	Method     string
	Attributes map[string]any
}

// Application identifies the calling application build.
type Application struct {
	Name       string
	Version    string
	Build      string
	Attributes map[string]any
}

// Session identifies the current session.
type Session struct {
	ID         string
	StartedAt  time.Time
	Attributes map[string]any
}

// Environment names the deployment environment the evaluation runs in.
type Environment struct {
	Name       string
	Attributes map[string]any
}

// EnvironmentName returns the context's environment name, or "" when unset.
func (c *Context) EnvironmentName() string {
	if c == nil || c.Environment == nil {
		return ""
	}
	return c.Environment.Name
}

// Resolve looks up a dotted property path. The first segment selects the
// namespace; an unqualified single segment defaults to the user namespace.
// The second result is false when the path resolves to absence.
func (c *Context) Resolve(path string) (any, bool) {
	if c == nil || path == "" {
		return nil, false
	}

	ns, rest, qualified := strings.Cut(path, ".")
	if !qualified {
		// Unqualified legacy form: a bare "plan" means "user.plan".
		return c.resolveUser(ns)
	}

	switch ns {
	case "user":
		return c.resolveUser(rest)
	case "device":
		return c.resolveDevice(rest)
	case "request":
		return c.resolveRequest(rest)
	case "application", "app":
		return c.resolveApplication(rest)
	case "session":
		return c.resolveSession(rest)
	case "environment", "env":
		return c.resolveEnvironment(rest)
	case "custom":
		return lookup(c.Custom, rest)
	}
	return nil, false
}

// BucketKey resolves the identity used for deterministic hashing. Known
// names map to their identity fields; anything else falls back to a generic
// property lookup. An empty result means the bucket key is absent and
// rollout/experiment steps are skipped.
func (c *Context) BucketKey(name string) string {
	if c == nil {
		return ""
	}
	if name == "" {
		name = "user_id"
	}

	switch name {
	case "user_id":
		if c.User == nil {
			return ""
		}
		if c.User.ID != "" {
			return c.User.ID
		}
		return c.User.AnonymousID
	case "anonymous_id":
		if c.User == nil {
			return ""
		}
		return c.User.AnonymousID
	case "device_id":
		if c.Device == nil {
			return ""
		}
		return c.Device.ID
	case "session_id":
		if c.Session == nil {
			return ""
		}
		return c.Session.ID
	}

	if v, ok := c.Resolve(name); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (c *Context) resolveUser(field string) (any, bool) {
	if c.User == nil {
		return nil, false
	}
	switch field {
	case "id":
		return nonEmpty(c.User.ID)
	case "anonymous_id":
		return nonEmpty(c.User.AnonymousID)
	case "email":
		return nonEmpty(c.User.Email)
	case "name":
		return nonEmpty(c.User.Name)
	case "plan":
		return nonEmpty(c.User.Plan)
	case "country":
		return nonEmpty(c.User.Country)
	}
	return lookup(c.User.Attributes, field)
}

func (c *Context) resolveDevice(field string) (any, bool) {
	if c.Device == nil {
		return nil, false
	}
	switch field {
	case "id":
		return nonEmpty(c.Device.ID)
	case "os":
		return nonEmpty(c.Device.OS)
	case "os_version":
		return nonEmpty(c.Device.OSVersion)
	case "model":
		return nonEmpty(c.Device.Model)
	case "manufacturer":
		return nonEmpty(c.Device.Manufacturer)
	case "locale":
		return nonEmpty(c.Device.Locale)
	}
	return lookup(c.Device.Attributes, field)
}

func (c *Context) resolveRequest(field string) (any, bool) {
	if c.Request == nil {
		return nil, false
	}
	switch field {
	case "ip":
		return nonEmpty(c.Request.IP)
	case "user_agent":
		return nonEmpty(c.Request.UserAgent)
	case "path":
		return nonEmpty(c.Request.Path)
	case "method":
		return nonEmpty(c.Request.Method)
	}
	return lookup(c.Request.Attributes, field)
}

func (c *Context) resolveApplication(field string) (any, bool) {
	if c.Application == nil {
		return nil, false
	}
	switch field {
	case "name":
		return nonEmpty(c.Application.Name)
	case "version":
		return nonEmpty(c.Application.Version)
	case "build":
		return nonEmpty(c.Application.Build)
	}
	return lookup(c.Application.Attributes, field)
}

func (c *Context) resolveSession(field string) (any, bool) {
	if c.Session == nil {
		return nil, false
	}
	switch field {
	case "id":
		return nonEmpty(c.Session.ID)
	case "started_at":
		if c.Session.StartedAt.IsZero() {
			return nil, false
		}
		return c.Session.StartedAt, true
	}
	return lookup(c.Session.Attributes, field)
}

func (c *Context) resolveEnvironment(field string) (any, bool) {
	if c.Environment == nil {
		return nil, false
	}
	if field == "name" {
		return nonEmpty(c.Environment.Name)
	}
	return lookup(c.Environment.Attributes, field)
}

func lookup(bag map[string]any, key string) (any, bool) {
	if bag == nil {
		return nil, false
	}
	v, ok := bag[key]
	return v, ok
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}
