package symbols

import (
	"gencheck/internal/types"
)

// ResolvedMember is a member as seen from a class: the nearest declaration
// wins, and parameter or result annotations missing there are inherited from
// the nearest ancestor that writes them.
type ResolvedMember struct {
	Name       string
	Kind       MemberKind
	Owner      *Declaration
	TypeParams []TemplateParam
	Params     []Param
	Result     types.TypeID
	Type       types.TypeID
}

// ParamTypes returns the method's own template parameter types.
func (m ResolvedMember) ParamTypes() []types.TypeID {
	out := make([]types.TypeID, len(m.TypeParams))
	for i, tp := range m.TypeParams {
		out[i] = tp.Type
	}
	return out
}

// LookupMember resolves the property or method name on class, walking its
// ancestors.
func (t *Table) LookupMember(class, name string, kind MemberKind) (ResolvedMember, bool) {
	var res ResolvedMember
	found := false
	nativeResult, nativeType := types.NoTypeID, types.NoTypeID
	var nativeParams []types.TypeID
	for _, anc := range t.Ancestors(class) {
		d, ok := t.Lookup(anc)
		if !ok {
			continue
		}
		m := d.Member(name, kind)
		if m == nil {
			continue
		}
		if !found {
			found = true
			res = ResolvedMember{
				Name:       m.Name,
				Kind:       m.Kind,
				Owner:      d,
				TypeParams: m.TypeParams,
				Params:     append([]Param(nil), m.Signature.Params...),
				Result:     m.Signature.Result,
				Type:       m.Type,
			}
			nativeResult = m.Signature.NativeResult
			nativeParams = make([]types.TypeID, len(res.Params))
			for i, p := range res.Params {
				nativeParams[i] = p.Native
				res.Params[i].Native = types.NoTypeID
			}
			nativeType = m.Native
			continue
		}
		if len(res.TypeParams) == 0 {
			res.TypeParams = m.TypeParams
		}
		for i := range res.Params {
			if res.Params[i].Type == types.NoTypeID && i < len(m.Signature.Params) {
				res.Params[i].Type = m.Signature.Params[i].Type
			}
		}
		if res.Result == types.NoTypeID {
			res.Result = m.Signature.Result
		}
		if res.Type == types.NoTypeID {
			res.Type = m.Type
		}
	}
	if !found {
		return ResolvedMember{}, false
	}
	for i := range res.Params {
		if res.Params[i].Type == types.NoTypeID {
			res.Params[i].Type = nativeParams[i]
		}
		res.Params[i].Native = nativeParams[i]
	}
	if res.Result == types.NoTypeID {
		res.Result = nativeResult
	}
	if res.Type == types.NoTypeID {
		res.Type = nativeType
	}
	return res, true
}
