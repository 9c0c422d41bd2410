package compiler

import (
	"fmt"
	"strings"
)

// Inspection is a compiled unit together with its namespace, for tools
// that look symbols up afterwards, such as the language server.
type Inspection struct {
	Script    *CompiledScript
	Results   *Results
	Namespace *Namespace
}

// Inspect compiles like Compile but keeps the namespace and the partial
// script even when errors were reported.
func (p *Pipeline) Inspect(unit Unit, headers ...Unit) *Inspection {
	out, ns, results := p.run(unit, headers)
	return &Inspection{Script: out, Results: results, Namespace: ns}
}

// Describe summarises what name is bound to, or "" when it is unbound.
func (in *Inspection) Describe(name string) string {
	id, ok := in.Namespace.Lookup(name)
	if !ok {
		return ""
	}
	ns := in.Namespace
	t := ns.Get(id)
	switch t.Type {
	case BoundConstant:
		v, _ := t.Constant()
		return fmt.Sprintf("const int %s = %d", t.Name, v)
	case BoundEnumType:
		e, _ := t.Enum()
		parts := make([]string, 0, len(e.Values))
		for _, v := range e.Values {
			parts = append(parts, fmt.Sprintf("%s = %d", v.Name, v.Value))
		}
		return fmt.Sprintf("enum %s { %s }", e.Name, strings.Join(parts, ", "))
	case BoundStructType:
		st, _ := t.Struct()
		return st.String()
	case BoundGlobalVariable:
		v, _ := t.Global()
		s := describeVariable(ns, &v.ScriptVariable)
		if v.IsImported {
			s = "import " + s
		}
		return s
	case BoundFunction:
		f, _ := t.Function()
		return describeFunction(ns, f)
	}
	switch t.Kind {
	case KindScalarType:
		return fmt.Sprintf("%s (%d bytes)", t.Name, t.SizeInBytes)
	case KindKeyword, KindModifier:
		return "keyword " + t.Name
	}
	return ""
}

func describeVariable(ns *Namespace, v *ScriptVariable) string {
	var sb strings.Builder
	sb.WriteString(ns.Get(v.Type).Name)
	if v.IsPointer {
		sb.WriteByte('*')
	}
	sb.WriteByte(' ')
	sb.WriteString(v.Name)
	switch {
	case v.IsDynamicArray:
		sb.WriteString("[]")
	case v.ArraySize > 0:
		fmt.Fprintf(&sb, "[%d]", v.ArraySize)
	}
	return sb.String()
}

func describeFunction(ns *Namespace, f *ScriptFunction) string {
	var sb strings.Builder
	if f.IsImported {
		sb.WriteString("import ")
	}
	sb.WriteString(ns.Get(f.ReturnType).Name)
	if f.ReturnsPointer {
		sb.WriteByte('*')
	}
	sb.WriteByte(' ')
	sb.WriteString(f.FullName())
	sb.WriteByte('(')
	for i, p := range f.Parameters {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ns.Get(p.Type).Name)
		if p.IsPointer {
			sb.WriteByte('*')
		}
		if p.Name != "" {
			sb.WriteByte(' ')
			sb.WriteString(p.Name)
		}
		if p.IsArray {
			sb.WriteString("[]")
		}
		if p.HasDefault {
			fmt.Fprintf(&sb, " = %d", p.Default)
		}
	}
	if f.VariableArguments {
		if len(f.Parameters) > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("...")
	}
	sb.WriteByte(')')
	return sb.String()
}
