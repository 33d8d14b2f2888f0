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
	"regexp"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/packages"
)

type borrowDirective int

const (
	noDirective borrowDirective = iota
	readonly
	noescape
	inline
	bce
)

func (d borrowDirective) String() string {
	switch d {
	case readonly:
		return "readonly"
	case noescape:
		return "noescape"
	case inline:
		return "inline"
	case bce:
		return "bce"
	}
	return "unknown"
}

func stringToDirective(s string) (borrowDirective, error) {
	switch s {
	case "readonly":
		return readonly, nil
	case "noescape":
		return noescape, nil
	case "inline":
		return inline, nil
	case "bce":
		return bce, nil
	}
	return noDirective, fmt.Errorf("no such directive %s", s)
}

// passInfo tracks an inlinable callsite of a func marked //borrow:inline.
type passInfo struct {
	passed bool
	// colNo is the column of the callsite's left paren.
	colNo int
}

type lineInfo struct {
	n          ast.Node
	directives []borrowDirective

	inlinableCallsites []passInfo
	// passedDirective is a map from index into the directives slice to a
	// boolean that says whether or not the directive succeeded, in the case
	// of directives like inlining that have compiler output if they passed.
	passedDirective map[int]bool
	// failedDirective maps directives already reported for this line to the
	// index of their failure, so that the several diagnostics -m=2 emits per
	// escape print only once.
	failedDirective map[int]int
}

var borrowRegex = regexp.MustCompile(`^// ?borrow:([\w,]+)`)

// directiveMap maps filepath to line number to lineInfo.
type directiveMap map[string]map[int]lineInfo

// annotations is everything parseDirectives learned from the source.
type annotations struct {
	lines directiveMap
	// readonlyParams maps each parameter that must not be written through to
	// the node that carried the directive.
	readonlyParams map[types.Object]ast.Node
}

type directiveVisitor struct {
	commentMap ast.CommentMap

	// directiveMap is a map from line number in the source file to the AST node
	// that the line number corresponded to, as well as any directives that we
	// parsed.
	directiveMap map[int]lineInfo

	// mustInlineFuncs is the set of funcs marked with //borrow:inline.
	mustInlineFuncs map[types.Object]struct{}
	readonlyParams  map[types.Object]ast.Node
	fileSet         *token.FileSet

	p *packages.Package
}

func newDirectiveVisitor(
	commentMap ast.CommentMap,
	fileSet *token.FileSet,
	p *packages.Package,
	mustInlineFuncs map[types.Object]struct{},
	readonlyParams map[types.Object]ast.Node,
) directiveVisitor {
	return directiveVisitor{
		commentMap:      commentMap,
		fileSet:         fileSet,
		directiveMap:    make(map[int]lineInfo),
		mustInlineFuncs: mustInlineFuncs,
		readonlyParams:  readonlyParams,
		p:               p,
	}
}

func (v directiveVisitor) Visit(node ast.Node) (w ast.Visitor) {
	if node == nil {
		return w
	}
	for _, g := range v.commentMap[node] {
		for _, c := range g.List {
			matches := borrowRegex.FindStringSubmatch(c.Text)
			if len(matches) == 0 {
				continue
			}
			for _, s := range strings.Split(matches[1], ",") {
				directive, err := stringToDirective(s)
				if err != nil {
					continue
				}
				v.apply(node, directive)
			}
		}
	}
	return v
}

func (v directiveVisitor) apply(node ast.Node, d borrowDirective) {
	switch d {
	case readonly:
		// readonly is checked statically, so it never enters the line map.
		for _, obj := range v.paramObjects(node) {
			v.readonlyParams[obj] = node
		}
		return
	case inline:
		if n, ok := node.(*ast.FuncDecl); ok {
			if obj := v.p.TypesInfo.Defs[n.Name]; obj != nil {
				v.mustInlineFuncs[obj] = struct{}{}
			}
			return
		}
	case noescape:
		if n, ok := node.(*ast.FuncDecl); ok {
			// Parameters are reported at their own position, which may be on
			// a later line than the func keyword.
			v.addLine(n, d)
			for _, f := range fieldsOf(n) {
				if v.line(f) != v.line(n) {
					v.addLine(f, d)
				}
			}
			return
		}
	}
	v.addLine(node, d)
}

func (v directiveVisitor) line(n ast.Node) int {
	return v.fileSet.Position(n.Pos()).Line
}

func (v directiveVisitor) addLine(n ast.Node, d borrowDirective) {
	lineNumber := v.line(n)
	info := v.directiveMap[lineNumber]
	if info.n == nil {
		info.n = n
	}
	info.directives = append(info.directives, d)
	v.directiveMap[lineNumber] = info
}

// paramObjects returns the parameters a readonly directive on node covers.
func (v directiveVisitor) paramObjects(node ast.Node) []types.Object {
	var fields []*ast.Field
	switch n := node.(type) {
	case *ast.FuncDecl:
		fields = fieldsOf(n)
	case *ast.Field:
		fields = []*ast.Field{n}
	case *ast.Ident:
		if obj, ok := v.p.TypesInfo.Defs[n].(*types.Var); ok && obj != nil {
			return []types.Object{obj}
		}
	}
	var objs []types.Object
	for _, f := range fields {
		for _, name := range f.Names {
			if obj := v.p.TypesInfo.Defs[name]; obj != nil {
				objs = append(objs, obj)
			}
		}
	}
	return objs
}

// fieldsOf returns the receiver and parameter fields of a func declaration.
func fieldsOf(fn *ast.FuncDecl) []*ast.Field {
	var fields []*ast.Field
	if fn.Recv != nil {
		fields = append(fields, fn.Recv.List...)
	}
	if fn.Type.Params != nil {
		fields = append(fields, fn.Type.Params.List...)
	}
	return fields
}

func parseDirectives(pkgs []*packages.Package, fileSet *token.FileSet) (annotations, error) {
	a := annotations{
		lines:          make(directiveMap),
		readonlyParams: make(map[types.Object]ast.Node),
	}
	mustInlineFuncs := make(map[types.Object]struct{})
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return a, fmt.Errorf("loading %s: %v", pkg.PkgPath, pkg.Errors[0])
		}
		for i, file := range pkg.Syntax {
			commentMap := ast.NewCommentMap(fileSet, file, file.Comments)

			v := newDirectiveVisitor(commentMap, fileSet, pkg, mustInlineFuncs, a.readonlyParams)
			// First: find all lines of code annotated with our borrow directives.
			ast.Walk(v, file)

			if len(v.directiveMap) > 0 {
				a.lines[pkg.CompiledGoFiles[i]] = v.directiveMap
			}
		}
	}

	// Do another pass to find all callsites of funcs marked with inline.
	for _, pkg := range pkgs {
		for i, file := range pkg.Syntax {
			v := &inlinedDeclVisitor{directiveVisitor: newDirectiveVisitor(nil, fileSet, pkg, mustInlineFuncs, nil)}
			filePath := pkg.CompiledGoFiles[i]
			v.directiveMap = a.lines[filePath]
			if v.directiveMap == nil {
				v.directiveMap = make(map[int]lineInfo)
			}
			ast.Walk(v, file)
			if len(v.directiveMap) > 0 {
				a.lines[filePath] = v.directiveMap
			}
		}
	}
	return a, nil
}

type inlinedDeclVisitor struct {
	directiveVisitor
}

func (v *inlinedDeclVisitor) Visit(node ast.Node) (w ast.Visitor) {
	if node == nil {
		return w
	}
	callExpr, ok := node.(*ast.CallExpr)
	if !ok {
		return v
	}
	var obj types.Object
	switch fn := astutil.Unparen(callExpr.Fun).(type) {
	case *ast.Ident:
		obj = v.p.TypesInfo.Uses[fn]
	case *ast.SelectorExpr:
		if sel := v.p.TypesInfo.Selections[fn]; sel != nil {
			obj = sel.Obj()
		} else {
			// Package-qualified func.
			obj = v.p.TypesInfo.Uses[fn.Sel]
		}
	case *ast.IndexExpr:
		// Explicitly instantiated generic func.
		if id, ok := fn.X.(*ast.Ident); ok {
			obj = v.p.TypesInfo.Uses[id]
		}
	}
	if f, ok := obj.(*types.Func); ok {
		// Instantiations of generic funcs are distinct objects.
		obj = f.Origin()
	}
	if _, ok := v.mustInlineFuncs[obj]; ok {
		lineNumber := v.line(node)
		info := v.directiveMap[lineNumber]
		info.n = node
		info.inlinableCallsites = append(info.inlinableCallsites,
			passInfo{colNo: v.fileSet.Position(callExpr.Lparen).Column})
		v.directiveMap[lineNumber] = info
	}
	return v
}
