// Package recipes holds the static, per-language_id table the executor
// consults to compile (if needed) and run a submission. This is the
// open-polymorphism extension point spec.md §9 describes: adding a
// language is adding one table row.
package recipes

import (
	"fmt"
	"time"

	"github.com/lattice-run/coderunner/pkg/types"
)

var registry = map[int]types.Recipe{
	71: { // Python 3
		Kind:           types.RecipeInterpreted,
		Name:           "Python 3",
		Extension:      ".py",
		RunCmd:         func(dir string) []string { return []string{"python3", "Main.py"} },
		DefaultTimeout: 5000 * time.Millisecond,
	},
	63: { // JavaScript (Node.js)
		Kind:           types.RecipeInterpreted,
		Name:           "JavaScript (Node.js)",
		Extension:      ".js",
		RunCmd:         func(dir string) []string { return []string{"node", "Main.js"} },
		DefaultTimeout: 5000 * time.Millisecond,
	},
	50: { // C (gcc)
		Kind:      types.RecipeCompiled,
		Name:      "C (gcc)",
		Extension: ".c",
		CompileCmd: func(dir, sourcePath string) []string {
			return []string{"gcc", "-O2", "-o", "a.out", "Main.c"}
		},
		RunCmd:         func(dir string) []string { return []string{"./a.out"} },
		DefaultTimeout: 5000 * time.Millisecond,
	},
	54: { // C++ (g++)
		Kind:      types.RecipeCompiled,
		Name:      "C++ (g++)",
		Extension: ".cpp",
		CompileCmd: func(dir, sourcePath string) []string {
			return []string{"g++", "-O2", "-o", "a.out", "Main.cpp"}
		},
		RunCmd:         func(dir string) []string { return []string{"./a.out"} },
		DefaultTimeout: 5000 * time.Millisecond,
	},
	62: { // Java (OpenJDK)
		Kind:      types.RecipeCompiled,
		Name:      "Java (OpenJDK)",
		Extension: ".java",
		CompileCmd: func(dir, sourcePath string) []string {
			return []string{"javac", "Main.java"}
		},
		RunCmd:         func(dir string) []string { return []string{"java", "Main"} },
		DefaultTimeout: 10000 * time.Millisecond,
	},
}

// Lookup returns the Recipe registered for languageID, or
// types.ErrUnknownLanguage if none is registered.
func Lookup(languageID int) (types.Recipe, error) {
	recipe, ok := registry[languageID]
	if !ok {
		return types.Recipe{}, fmt.Errorf("recipes: language_id %d: %w", languageID, types.ErrUnknownLanguage)
	}
	return recipe, nil
}

// SourceFileName is the fixed entrypoint name every recipe expects in
// the job's workspace directory ("Main" plus the recipe's extension).
func SourceFileName(recipe types.Recipe) string {
	return "Main" + recipe.Extension
}
