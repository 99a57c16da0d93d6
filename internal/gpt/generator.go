package gpt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

var _ domain.Generator = (*Generator)(nil)

// Chatter is the slice of Client the generator needs.
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Generator asks the model for a recipe and decodes the reply.
type Generator struct {
	chat Chatter
	log  *logger.Logger
}

// NewGenerator creates a recipe generator backed by chat.
func NewGenerator(chat Chatter, log *logger.Logger) *Generator {
	return &Generator{chat: chat, log: log}
}

// ── Wire shape ───────────────────────────────────────────────────

type recipeJSON struct {
	Name        string `json:"name"`
	Ingredients struct {
		Main      []ingredientJSON `json:"main"`
		Seasoning []ingredientJSON `json:"seasoning"`
		Dip       []ingredientJSON `json:"dip"`
	} `json:"ingredients"`
	Tools            []string `json:"tools"`
	PreparationSteps []string `json:"preparation_steps"`
	CookingSteps     []string `json:"cooking_steps"`
	Tips             []string `json:"tips"`
	Tags             []string `json:"tags"`
}

type ingredientJSON struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Category string `json:"category"`
}

// ── Generate ─────────────────────────────────────────────────────

// Generate returns a recipe for prompt. The result carries content only;
// identity, timestamps and state belong to the caller. Replies that do not
// decode into a usable recipe fail with domain.ErrDecoding.
func (g *Generator) Generate(ctx context.Context, prompt string) (*domain.Recipe, error) {
	messages := []Message{
		System(PromptRecipe),
		User(prompt),
	}

	raw, err := g.chat.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}

	r, err := decodeRecipe(raw)
	if err != nil {
		g.log.Error("gpt: bad recipe reply: %v\nraw: %s", err, truncate(raw, 400))
		return nil, err
	}

	g.log.Debug("gpt: generated %q (%d ingredients, %d steps)", r.Name,
		len(r.Ingredients.Main)+len(r.Ingredients.Seasoning)+len(r.Ingredients.Dip),
		len(r.PreparationSteps)+len(r.CookingSteps))
	return r, nil
}

func decodeRecipe(raw string) (*domain.Recipe, error) {
	raw = stripCodeFence(raw)

	var in recipeJSON
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("gpt: %w: %v", domain.ErrDecoding, err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("gpt: %w: missing name", domain.ErrDecoding)
	}

	r := &domain.Recipe{
		Name: name,
		Ingredients: domain.IngredientGroups{
			Main:      ingredients(in.Ingredients.Main),
			Seasoning: ingredients(in.Ingredients.Seasoning),
			Dip:       ingredients(in.Ingredients.Dip),
		},
		Tools:            lines(in.Tools),
		PreparationSteps: lines(in.PreparationSteps),
		CookingSteps:     lines(in.CookingSteps),
		Tips:             lines(in.Tips),
		Tags:             tags(in.Tags),
	}

	if len(r.Ingredients.Main) == 0 {
		return nil, fmt.Errorf("gpt: %w: no main ingredients", domain.ErrDecoding)
	}
	if len(r.CookingSteps) == 0 {
		return nil, fmt.Errorf("gpt: %w: no cooking steps", domain.ErrDecoding)
	}
	return r, nil
}

func ingredients(in []ingredientJSON) []domain.Ingredient {
	var out []domain.Ingredient
	for _, i := range in {
		name := strings.TrimSpace(i.Name)
		if name == "" {
			continue
		}
		out = append(out, domain.Ingredient{
			Name:     name,
			Quantity: strings.TrimSpace(i.Quantity),
			Category: strings.TrimSpace(i.Category),
		})
	}
	return out
}

// lines drops blank items.
func lines(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// tags lower-cases and dedupes.
func tags(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, t := range lines(in) {
		t = strings.ToLower(t)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// stripCodeFence removes ```json ... ``` wrappers that models like to add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}
