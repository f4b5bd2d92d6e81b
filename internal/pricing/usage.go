package pricing

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/esprit-sec/esprit/internal/config"
)

// usageMu serializes reads-modify-writes of usage.json within the
// process; the atomic write keeps other processes from seeing torn data.
var usageMu sync.Mutex

type usageFile struct {
	LifetimeCost float64 `json:"lifetime_cost"`
	LastUpdated  string  `json:"last_updated,omitempty"`
}

func readUsage() usageFile {
	var u usageFile
	data, err := config.ReadFileIfExists(config.UsageFile())
	if err != nil || data == nil {
		return u
	}
	_ = json.Unmarshal(data, &u)
	return u
}

// LifetimeCost returns the accumulated spend across all runs.
func LifetimeCost() float64 {
	usageMu.Lock()
	defer usageMu.Unlock()
	return readUsage().LifetimeCost
}

// AddSessionCost folds a finished session's cost into the lifetime
// total and returns the new total.
func AddSessionCost(sessionCost float64) float64 {
	usageMu.Lock()
	defer usageMu.Unlock()

	u := readUsage()
	u.LifetimeCost = math.Round((u.LifetimeCost+sessionCost)*10000) / 10000
	u.LastUpdated = time.Now().UTC().Format("2006-01-02T15:04:05Z")

	if data, err := json.MarshalIndent(u, "", "  "); err == nil {
		_ = config.WriteFileAtomic(config.UsageFile(), data)
	}
	return u.LifetimeCost
}
