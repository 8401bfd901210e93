package voting

import "time"

// temperatureSpread is the temperature range spread across voters.
const temperatureSpread = 0.3

// seedStride separates the seeds of neighbouring voters.
const seedStride = 12345

// SampleParams are the sampling parameters handed to one voter.
type SampleParams struct {
	Voter       int
	Temperature float64
	Seed        int64
}

// SampleParamsFor returns the parameters for every voter of cfg. When
// decorrelating, temperatures are spread linearly across
// [base, base+0.3] and seeds are offset from now by voter index.
func SampleParamsFor(cfg Config, now time.Time) []SampleParams {
	n := max(cfg.Voters, 1)
	params := make([]SampleParams, n)
	for i := range params {
		params[i] = SampleParams{Voter: i, Temperature: cfg.BaseTemperature}
		if !cfg.Decorrelate {
			continue
		}
		if n > 1 {
			params[i].Temperature = cfg.BaseTemperature + temperatureSpread*float64(i)/float64(n-1)
		}
		params[i].Seed = now.UnixNano() + int64(i)*seedStride
	}
	return params
}
