package validators

import (
	"slices"

	"flowstudio/domain/core/valueobjects"
)

// ConnectionRule allows edges from Source to Target landing on one of
// Handles. A rule with no handles allows nothing.
type ConnectionRule struct {
	Source  valueobjects.NodeType
	Target  valueobjects.NodeType
	Handles []valueobjects.Handle
}

// HandleSpec describes an input handle.
type HandleSpec struct {
	SingleInput bool
}

// ConnectionValidator decides which edges the graph accepts. It holds no
// mutable state after construction and is safe for concurrent use.
type ConnectionValidator struct {
	rules   []ConnectionRule
	handles map[valueobjects.Handle]HandleSpec
}

// DefaultRules returns the built-in connection table.
func DefaultRules() []ConnectionRule {
	return []ConnectionRule{
		{
			Source:  valueobjects.NodeTypeText,
			Target:  valueobjects.NodeTypeImage,
			Handles: []valueobjects.Handle{valueobjects.HandlePrompt},
		},
		{
			Source:  valueobjects.NodeTypeText,
			Target:  valueobjects.NodeTypeVideo,
			Handles: []valueobjects.Handle{valueobjects.HandlePrompt},
		},
		{
			Source:  valueobjects.NodeTypeText,
			Target:  valueobjects.NodeType3D,
			Handles: []valueobjects.Handle{valueobjects.HandlePrompt},
		},
		{
			Source:  valueobjects.NodeTypeImage,
			Target:  valueobjects.NodeTypeImage,
			Handles: []valueobjects.Handle{valueobjects.HandleReference},
		},
		{
			// Frames only feed the named frame inputs of a video.
			Source:  valueobjects.NodeTypeImage,
			Target:  valueobjects.NodeTypeVideo,
			Handles: []valueobjects.Handle{valueobjects.HandleFirstFrame, valueobjects.HandleLastFrame},
		},
		{
			Source:  valueobjects.NodeTypeImage,
			Target:  valueobjects.NodeType3D,
			Handles: []valueobjects.Handle{valueobjects.HandleDefault},
		},
	}
}

// DefaultHandles returns the built-in handle table.
func DefaultHandles() map[valueobjects.Handle]HandleSpec {
	return map[valueobjects.Handle]HandleSpec{
		valueobjects.HandleDefault:    {SingleInput: true},
		valueobjects.HandlePrompt:     {SingleInput: true},
		valueobjects.HandleReference:  {SingleInput: false},
		valueobjects.HandleFirstFrame: {SingleInput: true},
		valueobjects.HandleLastFrame:  {SingleInput: true},
	}
}

// NewConnectionValidator creates a validator with the default tables.
func NewConnectionValidator() *ConnectionValidator {
	return NewConnectionValidatorWith(DefaultRules(), DefaultHandles())
}

// NewConnectionValidatorWith creates a validator from explicit tables.
func NewConnectionValidatorWith(rules []ConnectionRule, handles map[valueobjects.Handle]HandleSpec) *ConnectionValidator {
	v := &ConnectionValidator{
		rules:   make([]ConnectionRule, 0, len(rules)),
		handles: make(map[valueobjects.Handle]HandleSpec, len(handles)),
	}
	for _, r := range rules {
		r.Handles = slices.Clone(r.Handles)
		v.rules = append(v.rules, r)
	}
	for h, spec := range handles {
		v.handles[h] = spec
	}
	return v
}

// WithRule returns a copy of v extended by r.
func (v *ConnectionValidator) WithRule(r ConnectionRule) *ConnectionValidator {
	return NewConnectionValidatorWith(append(slices.Clone(v.rules), r), v.handles)
}

// WithHandle returns a copy of v with the handle declared as spec.
func (v *ConnectionValidator) WithHandle(h valueobjects.Handle, spec HandleSpec) *ConnectionValidator {
	cp := NewConnectionValidatorWith(v.rules, v.handles)
	cp.handles[h] = spec
	return cp
}

// IsAllowed reports whether an edge from a sourceType node into the
// targetHandle of a targetType node is permitted.
func (v *ConnectionValidator) IsAllowed(sourceType, targetType valueobjects.NodeType, targetHandle valueobjects.Handle) bool {
	for _, r := range v.rules {
		if r.Source == sourceType && r.Target == targetType && slices.Contains(r.Handles, targetHandle) {
			return true
		}
	}
	return false
}

// IsSingleInput reports whether the handle accepts at most one incoming
// edge. Undeclared handles accept many.
func (v *ConnectionValidator) IsSingleInput(h valueobjects.Handle) bool {
	return v.handles[h].SingleInput
}

// Rules returns a copy of the rule table.
func (v *ConnectionValidator) Rules() []ConnectionRule {
	out := make([]ConnectionRule, len(v.rules))
	for i, r := range v.rules {
		r.Handles = slices.Clone(r.Handles)
		out[i] = r
	}
	return out
}
