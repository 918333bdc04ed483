package testkit

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"bankml/adapters/tabular"
)

// BankGeneratorConfig configures the synthetic bank-marketing generator
type BankGeneratorConfig struct {
	Rows int
	// MissingEvery blanks one cell in every n-th row; 0 disables it.
	MissingEvery int
	Seed         int64
}

// DefaultBankConfig returns a small, learnable dataset configuration
func DefaultBankConfig() BankGeneratorConfig {
	return BankGeneratorConfig{
		Rows:         200,
		MissingEvery: 0,
		Seed:         42,
	}
}

var (
	bankJobs    = []string{"admin.", "blue-collar", "services", "student", "retired"}
	bankMarital = []string{"divorced", "married", "single"}
	// BankHeaders is the column layout produced by BankDataGenerator
	BankHeaders = []string{"age", "job", "marital", "duration", "campaign", "y"}
)

// BankDataGenerator produces a deterministic table shaped like the UCI bank
// marketing data: numeric and categorical columns plus a yes/no target.
type BankDataGenerator struct {
	config BankGeneratorConfig
	rng    *rand.Rand
}

// NewBankDataGenerator creates a new generator
func NewBankDataGenerator(config BankGeneratorConfig) *BankDataGenerator {
	return &BankDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds the table. The target depends on call duration and job so
// a linear classifier can learn it.
func (g *BankDataGenerator) Generate() *tabular.Table {
	table := &tabular.Table{Headers: append([]string(nil), BankHeaders...)}

	for i := 0; i < g.config.Rows; i++ {
		age := 18 + g.rng.Intn(60)
		job := bankJobs[g.rng.Intn(len(bankJobs))]
		marital := bankMarital[g.rng.Intn(len(bankMarital))]
		duration := g.rng.Intn(900)
		campaign := 1 + g.rng.Intn(6)

		score := float64(duration-450)/120 - 0.4*float64(campaign-3)
		if job == "student" || job == "retired" {
			score += 1.5
		}
		p := 1 / (1 + math.Exp(-score))
		y := "no"
		if g.rng.Float64() < p {
			y = "yes"
		}

		row := []string{
			strconv.Itoa(age),
			job,
			marital,
			strconv.Itoa(duration),
			strconv.Itoa(campaign),
			y,
		}
		if g.config.MissingEvery > 0 && (i+1)%g.config.MissingEvery == 0 {
			row[1+g.rng.Intn(3)] = ""
		}
		table.Rows = append(table.Rows, row)
	}

	return table
}

// CountComplete returns the number of rows with no empty cell
func CountComplete(table *tabular.Table) int {
	n := 0
	for _, row := range table.Rows {
		complete := true
		for _, cell := range row {
			if cell == "" {
				complete = false
				break
			}
		}
		if complete {
			n++
		}
	}
	return n
}

// EncodeDelimited renders a table as delimited text with every cell quoted
// except numerics, the way the UCI files are written.
func EncodeDelimited(table *tabular.Table, delimiter rune) []byte {
	var buf bytes.Buffer
	write := func(cells []string) {
		for i, c := range cells {
			if i > 0 {
				buf.WriteRune(delimiter)
			}
			if _, err := strconv.ParseFloat(c, 64); err == nil {
				buf.WriteString(c)
			} else {
				fmt.Fprintf(&buf, "%q", c)
			}
		}
		buf.WriteByte('\n')
	}
	write(table.Headers)
	for _, row := range table.Rows {
		write(row)
	}
	return buf.Bytes()
}
