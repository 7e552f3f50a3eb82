package retrieve

import (
	"math"
	"time"
)

// Salience blend weights. Semantic similarity dominates; reinforcement and
// recency matter equally; raw access frequency is a weak signal.
const (
	weightSemantic      = 0.50
	weightReinforcement = 0.20
	weightRecency       = 0.20
	weightAccess        = 0.10
)

// salience scores one fused chunk. Reinforcement and access counts are
// log-normalized against the maxima of the current result set so a single
// heavily reinforced memory cannot flatten everything else.
func salience(f fused, maxReinforcement, maxAccess int, halfLifeDays float64, now time.Time) float64 {
	reinforcement := logNorm(f.rec.Reinforcement, maxReinforcement)
	access := logNorm(f.rec.AccessCount, maxAccess)

	days := now.Sub(f.rec.UpdatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	lambda := math.Ln2 / halfLifeDays
	recency := math.Exp(-lambda * days)

	return weightSemantic*f.sem +
		weightReinforcement*reinforcement +
		weightRecency*recency +
		weightAccess*access
}

// logNorm maps a counter to [0,1) as log(n+1)/log(max+2).
func logNorm(n, maxN int) float64 {
	if n < 0 {
		n = 0
	}
	return math.Log(float64(n)+1) / math.Log(float64(maxN)+2)
}
