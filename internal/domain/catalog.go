package domain

// Criterion reports whether a record has earned an achievement. Criteria
// should be monotonic over the record's lifetime.
type Criterion func(Record) bool

// CatalogEntry pairs a definition with the criterion that earns it. Entries
// without a criterion are only unlocked by explicit condition triggers.
type CatalogEntry struct {
	AchievementDefinition
	Criterion Criterion
}

// Catalog is a read-only set of achievement definitions.
type Catalog struct {
	entries []CatalogEntry
	byID    map[string]int
}

// NewCatalog builds a catalog; later entries with a repeated id are ignored.
func NewCatalog(entries ...CatalogEntry) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(entries))}
	for _, e := range entries {
		if _, dup := c.byID[e.ID]; dup {
			continue
		}
		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c
}

// DefaultCatalog returns the built-in fitness achievements.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "first-workout", Name: "First Workout", Description: "Complete your first workout", Points: 10},
			Criterion:             func(r Record) bool { return r.TotalWorkouts >= 1 },
		},
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "week-warrior", Name: "Week Warrior", Description: "7 day streak", Points: 25},
			Criterion:             func(r Record) bool { return r.LongestStreak >= 7 },
		},
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "century-club", Name: "Century Club", Description: "100 workouts completed", Points: 100},
			Criterion:             func(r Record) bool { return r.TotalWorkouts >= 100 },
		},
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "calorie-crusher", Name: "Calorie Crusher", Description: "Burn 50,000 calories", Points: 150},
			Criterion:             func(r Record) bool { return r.TotalCaloriesBurned >= 50000 },
		},
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "iron-will", Name: "Iron Will", Description: "30 day streak", Points: 200},
			Criterion:             func(r Record) bool { return r.LongestStreak >= 30 },
		},
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "beast-mode", Name: "Beast Mode", Description: "500 workouts completed", Points: 500},
			Criterion:             func(r Record) bool { return r.TotalWorkouts >= 500 },
		},
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "marathon", Name: "Marathon", Description: "Exercise for 100 hours", Points: 300},
		},
		CatalogEntry{
			AchievementDefinition: AchievementDefinition{ID: "protein-master", Name: "Protein Master", Description: "Hit protein goal 60 days", Points: 150},
		},
	)
}

// Lookup returns the definition for id.
func (c *Catalog) Lookup(id string) (AchievementDefinition, bool) {
	if c == nil {
		return AchievementDefinition{}, false
	}
	idx, ok := c.byID[id]
	if !ok {
		return AchievementDefinition{}, false
	}
	return c.entries[idx].AchievementDefinition, true
}

// Definitions lists every definition in catalog order.
func (c *Catalog) Definitions() []AchievementDefinition {
	if c == nil {
		return nil
	}
	out := make([]AchievementDefinition, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.AchievementDefinition)
	}
	return out
}

// Earned returns the definitions whose criterion holds for r and that r has not unlocked yet.
func (c *Catalog) Earned(r Record) []AchievementDefinition {
	if c == nil {
		return nil
	}
	var out []AchievementDefinition
	for _, e := range c.entries {
		if e.Criterion == nil || r.HasAchievement(e.ID) {
			continue
		}
		if e.Criterion(r) {
			out = append(out, e.AchievementDefinition)
		}
	}
	return out
}
