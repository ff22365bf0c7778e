package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ffcalendar/common/retry"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvSeconds(key string, result *time.Duration) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return
	}
	*result = time.Duration(f * float64(time.Second))
}

/* Scrape rules */

// ScrapeRules is the table-extraction rule set: which cells matter, how
// impact icons map to severity levels, and which currencies and impacts
// are worth keeping. Passed explicitly into the extractor; nothing reads
// these as ambient state.
type ScrapeRules struct {
	BaseURL           string            `yaml:"base_url"`
	TableSelector     string            `yaml:"table_selector"`
	RowSelector       string            `yaml:"row_selector"`
	CellSelector      string            `yaml:"cell_selector"`
	CellRoles         map[string]string `yaml:"cell_roles"`
	ExcludedCells     []string          `yaml:"excluded_cells"`
	ImpactColorMap    map[string]string `yaml:"impact_color_map"`
	AllowedCurrencies []string          `yaml:"allowed_currencies"`
	AllowedImpacts    []string          `yaml:"allowed_impacts"`

	ScrollStepPx   int           `yaml:"scroll_step_px"`
	ScrollPause    time.Duration `yaml:"scroll_pause"`
	MaxScrollIters int           `yaml:"max_scroll_iters"`
}

// DefaultScrapeRules targets the forexfactory.com calendar markup.
func DefaultScrapeRules() ScrapeRules {
	return ScrapeRules{
		BaseURL:       "https://www.forexfactory.com/calendar",
		TableSelector: ".calendar__table",
		RowSelector:   "tr",
		CellSelector:  "td",
		CellRoles: map[string]string{
			"calendar__date":     "date",
			"calendar__time":     "time",
			"calendar__currency": "currency",
			"calendar__impact":   "impact",
			"calendar__event":    "event",
			"calendar__detail":   "detail",
			"calendar__actual":   "actual",
			"calendar__forecast": "forecast",
			"calendar__previous": "previous",
		},
		ExcludedCells: []string{
			"calendar__graph",
			"calendar__expand",
		},
		ImpactColorMap: map[string]string{
			"icon icon--ff-impact-red": "High",
			"icon icon--ff-impact-ora": "Medium",
			"icon icon--ff-impact-yel": "Low",
			"icon icon--ff-impact-gra": "Non-Economic",
		},
		AllowedCurrencies: []string{
			"AUD", "CAD", "CHF", "CNY", "EUR", "GBP", "JPY", "NZD", "USD",
		},
		AllowedImpacts: []string{
			"High", "Medium", "Low", "Non-Economic",
		},
		ScrollStepPx:   500,
		ScrollPause:    500 * time.Millisecond,
		MaxScrollIters: 60,
	}
}

// LoadScrapeRules overlays a YAML rule file onto the defaults. An empty
// path returns the defaults unchanged.
func LoadScrapeRules(path string) (ScrapeRules, error) {
	rules := DefaultScrapeRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("reading rules file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return rules, fmt.Errorf("parsing rules file %s: %w", path, err)
	}
	return rules, rules.Validate()
}

// Validate reports a permanent configuration error for an unusable rule
// set. Impact levels named by the color map must themselves be allowed,
// otherwise every mapped row would be dropped silently.
func (r ScrapeRules) Validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("scrape rules: base_url is required")
	}
	if r.TableSelector == "" {
		return fmt.Errorf("scrape rules: table_selector is required")
	}
	if len(r.CellRoles) == 0 {
		return fmt.Errorf("scrape rules: cell_roles must not be empty")
	}
	if len(r.ImpactColorMap) == 0 {
		return fmt.Errorf("scrape rules: impact_color_map must not be empty")
	}
	if r.MaxScrollIters <= 0 {
		return fmt.Errorf("scrape rules: max_scroll_iters must be > 0, got %d", r.MaxScrollIters)
	}
	for color, level := range r.ImpactColorMap {
		if !lo.Contains(r.AllowedImpacts, level) {
			return fmt.Errorf("scrape rules: color %q maps to impact %q which is not in allowed_impacts", color, level)
		}
	}
	return nil
}

// CurrencyAllowed reports whether records in the currency are kept.
func (r ScrapeRules) CurrencyAllowed(currency string) bool {
	return lo.Contains(r.AllowedCurrencies, currency)
}

// ImpactAllowed reports whether records at the impact level are kept.
func (r ScrapeRules) ImpactAllowed(impact string) bool {
	return lo.Contains(r.AllowedImpacts, impact)
}

// CellExcluded reports whether the cell class marks a structural cell to
// skip. Rendered class attributes carry several tokens, so matching is by
// fragment.
func (r ScrapeRules) CellExcluded(class string) bool {
	return lo.SomeBy(r.ExcludedCells, func(marker string) bool {
		return strings.Contains(class, marker)
	})
}

/* Top-level configuration */

type Config struct {
	OutputDir  string
	RulesFile  string
	Headless   bool
	Retry      retry.Policy
	MonthPause time.Duration
}

func DefaultConfig() Config {
	return Config{
		OutputDir:  "news",
		Headless:   true,
		Retry:      retry.DefaultPolicy(),
		MonthPause: 3 * time.Second,
	}
}

func (c *Config) LoadFromEnv() {
	loadEnvString("FF_OUTPUT_DIR", &c.OutputDir)
	loadEnvString("FF_RULES_FILE", &c.RulesFile)
	loadEnvInt("FF_MAX_RETRIES", &c.Retry.MaxRetries)
	loadEnvSeconds("FF_BASE_DELAY", &c.Retry.BaseDelay)
	loadEnvSeconds("FF_MAX_DELAY", &c.Retry.MaxDelay)
	loadEnvSeconds("FF_MONTH_PAUSE", &c.MonthPause)
	if headless := getEnv("FF_HEADLESS", "true"); headless == "false" {
		c.Headless = false
	}
}
