package cluster

// Config controls one clustering run. A zero K asks the selector to sweep
// MinK..MaxK and keep the best silhouette score.
type Config struct {
	Entity        string   `yaml:"entity"`
	K             int      `yaml:"k"`
	MinK          int      `yaml:"min_k"`
	MaxK          int      `yaml:"max_k"`
	GeoWeight     int      `yaml:"geo_weight"`
	Scale         bool     `yaml:"scale"` // standardize geo columns
	Categorical   []string `yaml:"categorical"`
	Binary        []string `yaml:"binary"`
	Seed          int64    `yaml:"seed"`
	Restarts      int      `yaml:"restarts"`
	MaxIterations int      `yaml:"max_iterations"`
	Tolerance     float64  `yaml:"tolerance"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.MinK < 2 {
		c.MinK = 2
	}
	if c.MaxK <= 0 {
		c.MaxK = 30
	}
	if c.MaxK < c.MinK {
		c.MaxK = c.MinK
	}
	if c.GeoWeight <= 0 {
		c.GeoWeight = 1
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.Restarts <= 0 {
		c.Restarts = 10
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 300
	}
	if c.Tolerance <= 0 {
		c.Tolerance = 1e-4
	}
	return c
}

// TransitConfig clusters station centroids on raw position only.
func TransitConfig() Config {
	return Config{
		Entity: "mrt",
		K:      25,
	}.WithDefaults()
}

// SchoolConfig clusters schools on standardized position (weighted twice)
// plus their categorical and programme attributes.
func SchoolConfig() Config {
	return Config{
		Entity:      "school",
		K:           8,
		GeoWeight:   2,
		Scale:       true,
		Categorical: []string{"type_code", "mainlevel_code", "nature_code", "session_code"},
		Binary:      []string{"sap_ind", "autonomous_ind", "gifted_ind", "ip_ind"},
	}.WithDefaults()
}
