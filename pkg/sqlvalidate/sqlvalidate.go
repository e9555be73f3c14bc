// Package sqlvalidate parses a candidate SELECT statement, enforces
// structural constraints (SELECT-only, FROM required, bounded LIMIT, no
// disallowed functions), and re-emits the sanitized statement as canonical
// text.
package sqlvalidate

import (
	"errors"
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"google.golang.org/protobuf/reflect/protoreflect"
)

var (
	// ErrNotSelect is returned when the top-level statement is not a SELECT.
	ErrNotSelect = errors.New("sqlvalidate: statement is not a SELECT")
	// ErrMissingFrom is returned when a SELECT has no FROM clause.
	ErrMissingFrom = errors.New("sqlvalidate: SELECT has no FROM clause")
	// ErrNonLiteralLimit is returned when LIMIT is present but not a numeric literal.
	ErrNonLiteralLimit = errors.New("sqlvalidate: LIMIT must be a numeric literal")
	// ErrDisallowedFunction is returned when the statement calls a denylisted function.
	ErrDisallowedFunction = errors.New("sqlvalidate: statement calls a disallowed function")
	// ErrParse is returned when the SQL text does not parse.
	ErrParse = errors.New("sqlvalidate: parse error")
)

// Config carries the guardrail-adjacent settings the validator needs.
type Config struct {
	MaxLimit            int
	DisallowedFunctions []string
}

// Validate parses sql, enforces structural constraints, clamps or injects
// LIMIT, rejects disallowed function calls, and returns the canonical
// re-rendered SQL text.
func Validate(sql string, cfg Config) (string, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrParse, err)
	}

	if len(result.Stmts) != 1 {
		return "", fmt.Errorf("%w: expected exactly one statement", ErrNotSelect)
	}

	selectStmt := result.Stmts[0].Stmt.GetSelectStmt()
	if selectStmt == nil {
		return "", ErrNotSelect
	}

	// Function denylist is checked before the FROM requirement: a call to a
	// disallowed function (e.g. pg_sleep) is dangerous whether or not the
	// statement also happens to omit FROM.
	if err := enforceDisallowedFunctions(selectStmt, cfg.DisallowedFunctions); err != nil {
		return "", err
	}

	if len(selectStmt.FromClause) == 0 {
		return "", ErrMissingFrom
	}

	if err := enforceLimit(selectStmt, cfg.MaxLimit); err != nil {
		return "", err
	}

	canonical, err := pg_query.Deparse(result)
	if err != nil {
		return "", fmt.Errorf("%w: deparse: %s", ErrParse, err)
	}
	return canonical, nil
}

func enforceLimit(stmt *pg_query.SelectStmt, maxLimit int) error {
	if stmt.LimitCount == nil {
		stmt.LimitCount = &pg_query.Node{
			Node: &pg_query.Node_AConst{
				AConst: &pg_query.A_Const{
					Val: &pg_query.A_Const_Ival{
						Ival: &pg_query.Integer{Ival: int32(maxLimit)},
					},
				},
			},
		}
		return nil
	}

	aconst := stmt.LimitCount.GetAConst()
	if aconst == nil {
		return ErrNonLiteralLimit
	}
	ival := aconst.GetIval()
	if ival == nil {
		return ErrNonLiteralLimit
	}
	if int(ival.Ival) > maxLimit {
		aconst.Val = &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(maxLimit)}}
	}
	return nil
}

func enforceDisallowedFunctions(stmt *pg_query.SelectStmt, disallowed []string) error {
	denylist := make(map[string]struct{}, len(disallowed))
	for _, fn := range disallowed {
		denylist[strings.ToLower(fn)] = struct{}{}
	}
	if len(denylist) == 0 {
		return nil
	}

	var found string
	walkMessage(stmt.ProtoReflect(), func(m protoreflect.Message) bool {
		fc, ok := m.Interface().(*pg_query.FuncCall)
		if !ok || len(fc.Funcname) == 0 {
			return true
		}
		last := fc.Funcname[len(fc.Funcname)-1].GetString_()
		if last == nil {
			return true
		}
		name := strings.ToLower(last.Sval)
		if _, ok := denylist[name]; ok {
			found = name
			return false
		}
		return true
	})

	if found != "" {
		return fmt.Errorf("%w: %s", ErrDisallowedFunction, found)
	}
	return nil
}

// walkMessage recursively visits every embedded protobuf message reachable
// from m, including through repeated fields and oneofs, calling visit on
// each. visit returns false to stop the walk early.
func walkMessage(m protoreflect.Message, visit func(protoreflect.Message) bool) bool {
	if !visit(m) {
		return false
	}

	cont := true
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		if fd.Kind() != protoreflect.MessageKind && fd.Kind() != protoreflect.GroupKind {
			return true
		}
		if fd.IsList() {
			list := v.List()
			for i := 0; i < list.Len() && cont; i++ {
				cont = walkMessage(list.Get(i).Message(), visit)
			}
		} else if fd.IsMap() {
			mp := v.Map()
			mp.Range(func(_ protoreflect.MapKey, mv protoreflect.MapValue) bool {
				if mv.Message().IsValid() {
					cont = walkMessage(mv.Message(), visit)
				}
				return cont
			})
		} else {
			cont = walkMessage(v.Message(), visit)
		}
		return cont
	})
	return cont
}
