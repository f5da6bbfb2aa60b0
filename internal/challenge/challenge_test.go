package challenge

import (
	"math/rand/v2"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	reMulAdd = regexp.MustCompile(`^(\d+) × (\d+) \+ (\d+)$`)
	reMulSub = regexp.MustCompile(`^(\d+) × (\d+) − (\d+)$`)
	reSumMul = regexp.MustCompile(`^\((\d+) \+ (\d+)\) × (\d+)$`)
	reSqAdd  = regexp.MustCompile(`^(\d+)² \+ (\d+)$`)
)

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}

// evaluate recomputes the answer from the question text.
func evaluate(t *testing.T, q string) int {
	t.Helper()
	if m := reMulAdd.FindStringSubmatch(q); m != nil {
		return atoi(t, m[1])*atoi(t, m[2]) + atoi(t, m[3])
	}
	if m := reMulSub.FindStringSubmatch(q); m != nil {
		return atoi(t, m[1])*atoi(t, m[2]) - atoi(t, m[3])
	}
	if m := reSumMul.FindStringSubmatch(q); m != nil {
		return (atoi(t, m[1]) + atoi(t, m[2])) * atoi(t, m[3])
	}
	if m := reSqAdd.FindStringSubmatch(q); m != nil {
		a := atoi(t, m[1])
		return a*a + atoi(t, m[2])
	}
	t.Fatalf("unrecognised question %q", q)
	return 0
}

func TestGenerate_AnswersMatchQuestions(t *testing.T) {
	g := New(DefaultMin, DefaultMax, rand.NewPCG(1, 2))
	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		c := g.Generate()
		assert.Equal(t, evaluate(t, c.Question), c.Answer, c.Question)
		assert.GreaterOrEqual(t, c.Answer, 0, c.Question)
		for _, re := range []*regexp.Regexp{reMulAdd, reMulSub, reSumMul, reSqAdd} {
			if re.MatchString(c.Question) {
				seen[re.String()] = true
			}
		}
	}
	assert.Len(t, seen, 4, "every template should appear")
}

func TestGenerate_OperandRange(t *testing.T) {
	g := New(3, 5, rand.NewPCG(7, 7))
	digits := regexp.MustCompile(`\d+`)
	for i := 0; i < 200; i++ {
		c := g.Generate()
		for _, s := range digits.FindAllString(c.Question, -1) {
			n := atoi(t, s)
			assert.True(t, n >= 3 && n <= 5, "operand %d out of range in %q", n, c.Question)
		}
	}
}

func TestNext_DiffersFromPrevious(t *testing.T) {
	g := New(DefaultMin, DefaultMax, rand.NewPCG(42, 0))
	prev := g.Generate()
	for i := 0; i < 200; i++ {
		c := g.Next(prev.Question)
		require.NotEqual(t, prev.Question, c.Question)
		assert.Equal(t, evaluate(t, c.Question), c.Answer)
		prev = c
	}
}

func TestNext_DegenerateRange(t *testing.T) {
	g := New(2, 2, rand.NewPCG(1, 1))
	prev := "2 × 2 + 2"
	for i := 0; i < 20; i++ {
		c := g.Next(prev)
		assert.NotEqual(t, prev, c.Question)
		assert.Equal(t, evaluate(t, c.Question), c.Answer)
	}
}

func TestNew_InvalidRangeUsesDefaults(t *testing.T) {
	g := New(10, 1, nil)
	assert.Equal(t, DefaultMin, g.min)
	assert.Equal(t, DefaultMax, g.max)
}
