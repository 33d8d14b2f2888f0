// Copyright 2020 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package borrowsum

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/packages"
)

// readonlyChecker finds writes through parameters marked //borrow:readonly
// within a single function body.
type readonlyChecker struct {
	info *types.Info
	// tracked maps a borrowed parameter, or a local aliasing one, to the name
	// of the parameter it came from.
	tracked map[types.Object]string
	fileSet *token.FileSet
	// reported holds the lines that already have a failure.
	reported map[int]bool
	failures []failure
}

// checkReadonly returns a failure for each line in pkgs that writes through
// a readonly parameter.
func checkReadonly(
	pkgs []*packages.Package, fileSet *token.FileSet, params map[types.Object]ast.Node,
) []failure {
	if len(params) == 0 {
		return nil
	}
	var failures []failure
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			for _, decl := range file.Decls {
				fn, ok := decl.(*ast.FuncDecl)
				if !ok || fn.Body == nil {
					continue
				}
				c := readonlyChecker{
					info:     pkg.TypesInfo,
					tracked:  make(map[types.Object]string),
					fileSet:  fileSet,
					reported: make(map[int]bool),
				}
				for _, f := range fieldsOf(fn) {
					for _, name := range f.Names {
						if obj := pkg.TypesInfo.Defs[name]; obj != nil {
							if _, ok := params[obj]; ok {
								c.tracked[obj] = name.Name
							}
						}
					}
				}
				if len(c.tracked) == 0 {
					continue
				}
				ast.Inspect(fn.Body, c.visit)
				failures = append(failures, c.failures...)
			}
		}
	}
	return failures
}

func (c *readonlyChecker) visit(node ast.Node) bool {
	switch n := node.(type) {
	case *ast.AssignStmt:
		for _, lhs := range n.Lhs {
			c.checkWrite(n, lhs)
		}
		if len(n.Lhs) == len(n.Rhs) {
			for i := range n.Lhs {
				c.alias(n.Lhs[i], n.Rhs[i])
			}
		}
	case *ast.ValueSpec:
		if len(n.Names) == len(n.Values) {
			for i := range n.Names {
				c.alias(n.Names[i], n.Values[i])
			}
		}
	case *ast.IncDecStmt:
		c.checkWrite(n, n.X)
	case *ast.RangeStmt:
		if n.Tok == token.ASSIGN {
			if n.Key != nil {
				c.checkWrite(n, n.Key)
			}
			if n.Value != nil {
				c.checkWrite(n, n.Value)
			}
		}
	case *ast.CallExpr:
		c.checkBuiltin(n)
	}
	return true
}

func (c *readonlyChecker) checkWrite(stmt ast.Node, lhs ast.Expr) {
	obj, through := c.root(lhs)
	if name, ok := c.tracked[obj]; ok && through {
		c.fail(stmt, fmt.Sprintf("write through borrowed parameter %s", name))
	}
}

func (c *readonlyChecker) checkBuiltin(call *ast.CallExpr) {
	id, ok := astutil.Unparen(call.Fun).(*ast.Ident)
	if !ok || len(call.Args) == 0 {
		return
	}
	b, ok := c.info.Uses[id].(*types.Builtin)
	if !ok {
		return
	}
	var verb string
	switch b.Name() {
	case "append":
		verb = "append to"
	case "copy":
		verb = "copy into"
	case "clear":
		verb = "clear of"
	case "delete":
		verb = "delete from"
	default:
		return
	}
	obj, _ := c.root(call.Args[0])
	if name, ok := c.tracked[obj]; ok {
		c.fail(call, fmt.Sprintf("%s borrowed parameter %s", verb, name))
	}
}

// alias starts tracking the variable assigned by lhs if rhs refers into a
// tracked variable. Tracking is flow-insensitive: a variable stays tracked
// after it is reassigned.
func (c *readonlyChecker) alias(lhs, rhs ast.Expr) {
	id, ok := lhs.(*ast.Ident)
	if !ok || id.Name == "_" {
		return
	}
	dst := c.info.ObjectOf(id)
	if dst == nil {
		return
	}
	if c.viewsOwnArray(rhs) {
		return
	}
	src, _ := c.root(rhs)
	if name, ok := c.tracked[src]; ok {
		c.tracked[dst] = name
	}
}

// root walks lhs down to the variable it is rooted at, and reports whether
// the path dereferences memory that the variable shares with its caller.
func (c *readonlyChecker) root(e ast.Expr) (types.Object, bool) {
	through := false
	for {
		switch x := e.(type) {
		case *ast.ParenExpr:
			e = x.X
		case *ast.SliceExpr:
			if c.isArray(x.X) {
				// Everything so far addresses the array's own storage.
				through = false
			}
			e = x.X
		case *ast.UnaryExpr:
			if x.Op != token.AND {
				return nil, false
			}
			if c.isArray(x.X) {
				through = false
			}
			e = x.X
		case *ast.StarExpr:
			through = true
			e = x.X
		case *ast.IndexExpr:
			if c.sharesBacking(x.X) {
				through = true
			}
			e = x.X
		case *ast.SelectorExpr:
			sel := c.info.Selections[x]
			if sel == nil || sel.Kind() != types.FieldVal {
				return nil, false
			}
			if sel.Indirect() {
				through = true
			}
			e = x.X
		case *ast.Ident:
			return c.info.ObjectOf(x), through
		default:
			return nil, false
		}
	}
}

// viewsOwnArray reports whether e slices or takes the address of an array
// held by value, so that the result only refers to the callee's copy.
func (c *readonlyChecker) viewsOwnArray(e ast.Expr) bool {
	var operand ast.Expr
	switch x := astutil.Unparen(e).(type) {
	case *ast.SliceExpr:
		operand = x.X
	case *ast.UnaryExpr:
		if x.Op != token.AND {
			return false
		}
		operand = x.X
	default:
		return false
	}
	if !c.isArray(operand) {
		return false
	}
	_, through := c.root(operand)
	return !through
}

func (c *readonlyChecker) isArray(e ast.Expr) bool {
	t := c.info.TypeOf(e)
	if t == nil {
		return false
	}
	_, ok := t.Underlying().(*types.Array)
	return ok
}

// sharesBacking reports whether indexing e addresses memory outside of e's
// own value.
func (c *readonlyChecker) sharesBacking(e ast.Expr) bool {
	t := c.info.TypeOf(e)
	if t == nil {
		return true
	}
	switch t.Underlying().(type) {
	case *types.Array:
		return false
	case *types.Basic:
		// Strings are immutable.
		return false
	}
	return true
}

func (c *readonlyChecker) fail(n ast.Node, message string) {
	line := c.fileSet.Position(n.Pos()).Line
	if c.reported[line] {
		return
	}
	c.reported[line] = true
	c.failures = append(c.failures, failure{
		pos:     c.fileSet.Position(n.Pos()),
		n:       n,
		message: message,
	})
}
