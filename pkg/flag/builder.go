package flag

import (
	"time"
)

// Builder assembles a Definition and only yields it after validation
// succeeds, so a partially-valid intermediate never reaches evaluation.
type Builder struct {
	def Definition
	err error
}

// NewBuilder starts a definition with the given key, declared value type and
// default value. The flag starts in the active status.
func NewBuilder(key string, typ Kind, def Value) *Builder {
	b := &Builder{
		def: Definition{
			Type:    typ,
			Status:  StatusActive,
			Default: def,
		},
	}
	b.def.ID, b.err = NewID(key)
	return b
}

func (b *Builder) WithStatus(s Status) *Builder {
	b.def.Status = s
	return b
}

func (b *Builder) WithDescription(desc string) *Builder {
	b.def.Metadata.Description = desc
	return b
}

func (b *Builder) WithOwner(owner string) *Builder {
	b.def.Metadata.Owner = owner
	return b
}

func (b *Builder) WithTags(tags ...string) *Builder {
	b.def.Metadata.Tags = append(b.def.Metadata.Tags, tags...)
	return b
}

// WithSunset marks the deprecation sunset date.
func (b *Builder) WithSunset(t time.Time) *Builder {
	b.def.Metadata.SunsetAt = &t
	return b
}

// WithEnvironment explicitly enables or disables the flag in an environment.
// Once any environment is declared, undeclared environments are disabled.
func (b *Builder) WithEnvironment(name string, enabled bool) *Builder {
	if b.def.Environments == nil {
		b.def.Environments = make(map[string]bool)
	}
	b.def.Environments[name] = enabled
	return b
}

func (b *Builder) WithRule(r Rule) *Builder {
	b.def.Rules = append(b.def.Rules, r)
	return b
}

func (b *Builder) WithRollout(percentage float64, salt string) *Builder {
	b.def.Rollout = &Rollout{Percentage: percentage, Salt: salt}
	return b
}

func (b *Builder) WithExperiment(e Experiment) *Builder {
	b.def.Experiment = &e
	return b
}

func (b *Builder) WithUserOverride(userID string, v Value) *Builder {
	if b.def.UserOverrides == nil {
		b.def.UserOverrides = make(map[string]Value)
	}
	b.def.UserOverrides[userID] = v
	return b
}

func (b *Builder) WithGroupOverride(group string, v Value) *Builder {
	if b.def.GroupOverrides == nil {
		b.def.GroupOverrides = make(map[string]Value)
	}
	b.def.GroupOverrides[group] = v
	return b
}

// Build validates the assembled definition and returns it. On failure no
// definition is returned.
func (b *Builder) Build() (*Definition, error) {
	if b.err != nil {
		return nil, b.err
	}

	def := b.def
	now := time.Now()
	def.Metadata.CreatedAt = now
	def.Metadata.UpdatedAt = now
	def.Normalize()

	if err := Validate(&def); err != nil {
		return nil, err
	}
	return def.Clone(), nil
}
