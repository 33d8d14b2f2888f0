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
	"bufio"
	"context"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
)

// CheckOptions configures CheckWithOptions.
type CheckOptions struct {
	// Dir is the directory that paths are relative to. It defaults to the
	// current working directory.
	Dir string
	// KeepLog writes the full compiler output to a temp file and prints its
	// name to LogNotice.
	KeepLog bool
	// LogNotice receives the name of the kept log. It defaults to stdout.
	LogNotice io.Writer
}

// failure is a single failed assertion.
type failure struct {
	pos     token.Position
	n       ast.Node
	message string
}

// Check searches through the packages at the input paths and writes failures
// to comply with //borrow directives to the given io.Writer.
func Check(ctx context.Context, w io.Writer, paths ...string) error {
	return CheckWithOptions(ctx, w, CheckOptions{}, paths...)
}

// CheckWithOptions is like Check, but with explicit options.
func CheckWithOptions(ctx context.Context, w io.Writer, opts CheckOptions, paths ...string) error {
	for _, path := range paths {
		// packages.Load and the line mapping of compiler output both rely on
		// paths relative to Dir.
		if !strings.HasPrefix(path, "./") {
			return fmt.Errorf("all paths should be prefixed with './': got %s", path)
		}
	}
	if opts.Dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		opts.Dir = cwd
	}
	if opts.LogNotice == nil {
		opts.LogNotice = os.Stdout
	}
	fileSet := token.NewFileSet()
	pkgs, err := packages.Load(&packages.Config{
		Context: ctx,
		Dir:     opts.Dir,
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedCompiledGoFiles |
			packages.NeedTypesInfo | packages.NeedTypes,
		Fset: fileSet,
	}, paths...)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	a, err := parseDirectives(pkgs, fileSet)
	if err != nil {
		return err
	}

	var static, compiled []failure
	var buildErr error
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		static = checkReadonly(pkgs, fileSet, a.readonlyParams)
		return nil
	})
	g.Go(func() error {
		var err error
		compiled, buildErr, err = checkCompiler(gCtx, fileSet, a.lines, opts, paths)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	failures := append(static, compiled...)
	sort.SliceStable(failures, func(i, j int) bool {
		if failures[i].pos.Filename != failures[j].pos.Filename {
			return failures[i].pos.Filename < failures[j].pos.Filename
		}
		return failures[i].pos.Line < failures[j].pos.Line
	})
	for _, f := range failures {
		if err := printAssertionFailure(opts.Dir, fileSet, f, w); err != nil {
			return err
		}
	}
	// If 'go build' failed, return the error.
	if buildErr != nil {
		return fmt.Errorf("go build: %w", buildErr)
	}
	return nil
}

var optInfo = regexp.MustCompile(`([\.\/\w-]+):(\d+):(\d+): (.*)`)

const (
	boundsCheck      = "Found IsInBounds"
	sliceBoundsCheck = "Found SliceIsInBounds"
)

// checkCompiler invokes the Go compiler with -m flags to get it to print its
// optimization decisions, and matches them against the annotated lines. The
// build's own error is returned separately from errors reading its output.
func checkCompiler(
	ctx context.Context,
	fileSet *token.FileSet,
	directiveMap directiveMap,
	opts CheckOptions,
	paths []string,
) (failures []failure, buildErr error, err error) {
	args := append([]string{"build", "-gcflags=-m=2 -d=ssa/check_bce/debug=1"}, paths...)
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = opts.Dir

	pr, pw := io.Pipe()
	defer pr.Close()
	var out io.Writer = pw
	if opts.KeepLog {
		f, err := os.CreateTemp("", "borrowcheck-*.log")
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		fmt.Fprintf(opts.LogNotice, "See %s for full output.\n", f.Name())
		// Log full 'go build' command.
		fmt.Fprintln(f, cmd)
		out = io.MultiWriter(pw, f)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	cmdErr := make(chan error, 1)
	go func() {
		cmdErr <- cmd.Run()
		_ = pw.Close()
	}()

	fail := func(lineToDirectives map[int]lineInfo, lineNo int, i int, message string) {
		info := lineToDirectives[lineNo]
		if j, ok := info.failedDirective[i]; ok {
			// "moved to heap" names the variable, so it wins over the
			// flow diagnostics printed before it.
			if strings.HasPrefix(message, "moved to heap:") {
				failures[j].message = message
			}
			return
		}
		info.failedDirective[i] = len(failures)
		failures = append(failures, failure{
			pos:     fileSet.Position(info.n.Pos()),
			n:       info.n,
			message: message,
		})
	}

	scanner := bufio.NewScanner(pr)
	for scanner.Scan() {
		matches := optInfo.FindStringSubmatch(scanner.Text())
		if len(matches) == 0 {
			continue
		}
		path := matches[1]
		lineNo, err := strconv.Atoi(matches[2])
		if err != nil {
			return nil, nil, err
		}
		colNo, err := strconv.Atoi(matches[3])
		if err != nil {
			return nil, nil, err
		}
		message := matches[4]

		if !filepath.IsAbs(path) {
			path = filepath.Join(opts.Dir, path)
		}
		lineToDirectives := directiveMap[path]
		if lineToDirectives == nil {
			continue
		}
		info, ok := lineToDirectives[lineNo]
		if !ok {
			continue
		}
		if info.passedDirective == nil {
			info.passedDirective = make(map[int]bool)
			info.failedDirective = make(map[int]int)
			lineToDirectives[lineNo] = info
		}
		for i, d := range info.directives {
			switch d {
			case bce:
				if message == boundsCheck || message == sliceBoundsCheck {
					// Error! We found a bounds check where the user expected
					// there to be none.
					fail(lineToDirectives, lineNo, i, message)
				}
			case inline:
				if strings.HasPrefix(message, "inlining call to") {
					info.passedDirective[i] = true
				}
			case noescape:
				if escapes(message) {
					fail(lineToDirectives, lineNo, i, message)
				}
			}
		}
		if strings.HasPrefix(message, "inlining call to") {
			for i := range info.inlinableCallsites {
				cs := &info.inlinableCallsites[i]
				if cs.colNo == colNo {
					cs.passed = true
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	buildErr = <-cmdErr
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	// An inlining directive passes if it has compiler output. For each
	// inlining directive, check if there was matching compiler output and
	// fail if not.
	for _, lineToDirectives := range directiveMap {
		for _, info := range lineToDirectives {
			for _, cs := range info.inlinableCallsites {
				if !cs.passed {
					failures = append(failures, failure{
						pos: fileSet.Position(info.n.Pos()), n: info.n, message: "call was not inlined",
					})
				}
			}
			for i, d := range info.directives {
				if d == inline && !info.passedDirective[i] {
					failures = append(failures, failure{
						pos: fileSet.Position(info.n.Pos()), n: info.n, message: "call was not inlined",
					})
				}
			}
		}
	}
	return failures, buildErr, nil
}

// escapes reports whether an escape analysis diagnostic says that a value on
// its line ends up on the heap.
func escapes(message string) bool {
	switch {
	case strings.HasPrefix(message, "leaking param"),
		strings.HasPrefix(message, "moved to heap:"),
		strings.HasSuffix(message, "escapes to heap"),
		strings.HasSuffix(message, "escapes to heap:"):
		return true
	case strings.HasPrefix(message, "parameter ") && strings.Contains(message, " leaks to "):
		return true
	}
	return false
}

func printAssertionFailure(dir string, fileSet *token.FileSet, f failure, w io.Writer) error {
	relPath, err := filepath.Rel(dir, f.pos.Filename)
	if err != nil {
		return err
	}
	src, err := source(fileSet, f.n)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s:%d:\t%s: %s\n", relPath, f.pos.Line, src, f.message)
	return err
}

// source prints n. Func declarations are printed without their body, and
// fields as their names followed by their type.
func source(fileSet *token.FileSet, n ast.Node) (string, error) {
	var buf strings.Builder
	switch n := n.(type) {
	case *ast.FuncDecl:
		sig := *n
		sig.Doc = nil
		sig.Body = nil
		if err := printer.Fprint(&buf, fileSet, &sig); err != nil {
			return "", err
		}
	case *ast.Field:
		for i, name := range n.Names {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(name.Name)
		}
		if len(n.Names) > 0 {
			buf.WriteByte(' ')
		}
		if err := printer.Fprint(&buf, fileSet, n.Type); err != nil {
			return "", err
		}
	default:
		if err := printer.Fprint(&buf, fileSet, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
