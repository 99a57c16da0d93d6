package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hammamikhairi/mealscribe/internal/config"
	"github.com/hammamikhairi/mealscribe/internal/domain"
)

type stubGenerator struct{ err error }

func (g stubGenerator) Generate(_ context.Context, prompt string) (*domain.Recipe, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &domain.Recipe{
		Name: "Test Curry",
		Ingredients: domain.IngredientGroups{
			Main: []domain.Ingredient{
				{Name: "chickpeas", Quantity: "400 g"},
				{Name: "coconut milk", Quantity: "1 can"},
			},
		},
		CookingSteps: []string{"Simmer everything"},
	}, nil
}

func testEnv(t *testing.T, store string) map[string]string {
	t.Helper()
	return map[string]string{
		config.EnvDataDir:     t.TempDir(),
		config.EnvStoreDriver: store,
	}
}

func execute(t *testing.T, env map[string]string, gen domain.Generator, args ...string) (string, error) {
	t.Helper()
	opts := &RootOptions{
		getenv:    func(k string) string { return env[k] },
		generator: gen,
	}
	cmd := newRootCommand(opts)
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--quiet"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// shortIDFrom pulls the id out of "cooking up <id>...".
func shortIDFrom(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "cooking up "); ok {
			return strings.TrimSuffix(rest, "...")
		}
	}
	t.Fatalf("no id in output:\n%s", out)
	return ""
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mealscribe", cmd.Use)
	assert.NotNil(t, cmd.RunE, "bare invocation opens the shell")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "generate", "list", "show", "retry", "attach", "delete", "pin", "unpin", "checklist", "repair"}

	for _, name := range commands {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"config", "verbose", "quiet", "log-file"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)

	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	assert.NotNil(t, run.Flags().Lookup("metrics-addr"))
	assert.NotNil(t, run.Flags().Lookup("voice"))
}

func TestVerboseAndQuietConflict(t *testing.T) {
	_, err := execute(t, testEnv(t, config.StoreMemory), stubGenerator{}, "--verbose", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestGeneratePrintsRecipe(t *testing.T) {
	out, err := execute(t, testEnv(t, config.StoreMemory), stubGenerator{}, "generate", "a", "mild", "curry")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Curry")
	assert.Contains(t, out, "chickpeas - 400 g")
	assert.Contains(t, out, "a mild curry")
}

func TestGenerateFailureNamesRetry(t *testing.T) {
	gen := stubGenerator{err: domain.ErrRemote}
	_, err := execute(t, testEnv(t, config.StoreMemory), gen, "generate", "soup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mealscribe retry")
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	_, err := execute(t, testEnv(t, config.StoreMemory), stubGenerator{}, "generate", "   ")
	assert.True(t, errors.Is(err, domain.ErrEmptyPrompt))
}

func TestRecipeLifecycleAcrossCommands(t *testing.T) {
	env := testEnv(t, config.StoreSQLite)
	gen := stubGenerator{}

	out, err := execute(t, env, gen, "generate", "curry")
	require.NoError(t, err)
	id := shortIDFrom(t, out)

	out, err = execute(t, env, gen, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "awaiting_image")

	_, err = execute(t, env, gen, "checklist", id)
	assert.True(t, errors.Is(err, domain.ErrValidation), "unpinned recipes have no checklist")

	out, err = execute(t, env, gen, "pin", id)
	require.NoError(t, err)
	assert.Contains(t, out, "pinned Test Curry")

	out, err = execute(t, env, gen, "checklist", id, "--toggle", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1/2 done")
	assert.Contains(t, out, "[x] chickpeas")

	out, err = execute(t, env, gen, "checklist", id)
	require.NoError(t, err)
	assert.Contains(t, out, "1/2 done", "progress survives restarts")

	img := filepath.Join(t.TempDir(), "dish.JPG")
	require.NoError(t, os.WriteFile(img, []byte("jpeg"), 0o644))
	out, err = execute(t, env, gen, "attach", id, img)
	require.NoError(t, err)
	assert.Contains(t, out, "photo saved for Test Curry")

	out, err = execute(t, env, gen, "show", id)
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "photo: ")

	out, err = execute(t, env, gen, "repair")
	require.NoError(t, err)
	assert.Contains(t, out, "orphaned checklists:      0")
	assert.NotContains(t, out, "missing photo")

	_, err = execute(t, env, gen, "delete", id)
	require.NoError(t, err)

	out, err = execute(t, env, gen, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no recipes yet")

	photos, err := os.ReadDir(filepath.Join(env[config.EnvDataDir], "photos", "recipes"))
	if err == nil {
		assert.Empty(t, photos, "photo removed with the recipe")
	}
}

func TestRetryAfterFailure(t *testing.T) {
	env := testEnv(t, config.StoreSQLite)

	out, err := execute(t, env, stubGenerator{err: domain.ErrRemote}, "generate", "ramen")
	require.Error(t, err)
	id := shortIDFrom(t, out)

	out, err = execute(t, env, stubGenerator{}, "retry", id)
	require.NoError(t, err)
	assert.Contains(t, out, "Test Curry")

	_, err = execute(t, env, stubGenerator{}, "retry", id)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "only failed records retry")
}

func TestResolveUnknownID(t *testing.T) {
	_, err := execute(t, testEnv(t, config.StoreMemory), stubGenerator{}, "show", "nope")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Category
		ok   bool
	}{
		{"", domain.CategoryIngredients, true},
		{"steps", domain.CategorySteps, true},
		{"Sauce", domain.CategorySauce, true},
		{"s", "", false},
		{"garnish", "", false},
	}
	for _, tt := range tests {
		got, err := parseCategory(tt.in)
		if !tt.ok {
			assert.True(t, errors.Is(err, domain.ErrValidation), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
