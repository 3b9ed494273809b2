package recipe

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

//go:embed recipes/*.cue
var builtinFS embed.FS

var loadBuiltins = sync.OnceValues(func() ([]*Recipe, error) {
	entries, err := fs.Glob(builtinFS, "recipes/*.cue")
	if err != nil {
		return nil, err
	}
	var all []*Recipe
	for _, name := range entries {
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		recipes, err := Compile(data, path.Base(name))
		if err != nil {
			return nil, fmt.Errorf("builtin recipe %s: %w", name, err)
		}
		all = append(all, recipes...)
	}
	return all, nil
})

// Builtins returns the recipes compiled into the binary.
func Builtins() ([]*Recipe, error) {
	return loadBuiltins()
}

// Builtin returns the built-in recipe with the given ID.
func Builtin(id string) (*Recipe, error) {
	all, err := Builtins()
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRecipe, id)
}

// Resolve finds a recipe by reference. A reference ending in ".cue" or
// naming an existing file is compiled from disk; "file.cue#id" picks one
// recipe from a file declaring several. Anything else is a built-in ID.
func Resolve(ref string) (*Recipe, error) {
	file, id, _ := strings.Cut(ref, "#")
	if !isFile(file) {
		return Builtin(ref)
	}

	recipes, err := CompileFile(file)
	if err != nil {
		return nil, err
	}
	if id == "" {
		if len(recipes) != 1 {
			return nil, fmt.Errorf("%w: %s declares %d recipes, use %s#<id>", ErrUnknownRecipe, file, len(recipes), file)
		}
		return recipes[0], nil
	}
	for _, r := range recipes {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrUnknownRecipe, id, file)
}

func isFile(name string) bool {
	if filepath.Ext(name) == ".cue" {
		return true
	}
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}
