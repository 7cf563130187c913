package bracket

import (
	"encoding/json"
	"strings"

	"github.com/AdamBeresnev/dojo-brackets/internal/utils"
)

const openLabel = "Open"

// Key identifies a competition category. A nil label means "unset" and is a value of its own:
// fighters with no weight label never share a category with labelled ones.
type Key struct {
	Age    *string `json:"age"`
	Weight *string `json:"weight"`
	Belt   *string `json:"belt"`
}

func NewKey(age, weight, belt string) Key {
	return Key{Age: utils.Label(age), Weight: utils.Label(weight), Belt: utils.Label(belt)}
}

// Normalize trims labels and turns blank ones into unset.
func (k Key) Normalize() Key {
	return Key{Age: utils.LabelOf(k.Age), Weight: utils.LabelOf(k.Weight), Belt: utils.LabelOf(k.Belt)}
}

// String is the canonical storage encoding of the key.
func (k Key) String() string {
	b, _ := json.Marshal([3]*string{k.Age, k.Weight, k.Belt})
	return string(b)
}

func (k Key) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, l := range []*string{k.Age, k.Weight, k.Belt} {
		if l == nil {
			parts = append(parts, openLabel)
			continue
		}
		parts = append(parts, *l)
	}
	return strings.Join(parts, " - ")
}

func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// Category is one group of approved registrations sharing the same key, in registration order.
type Category struct {
	Key          Key
	Participants []Registration
}

func (c Category) Name() string {
	return c.Key.DisplayName()
}
