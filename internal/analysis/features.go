package analysis

// Version is recorded alongside stored features so results from older
// analyzer revisions can be found and reprocessed.
const Version = "1.0"

// Features holds the attributes extracted from one track, keyed by the
// canonical snake_case names the analyzer tool emits: tempo, key, mode,
// energy, danceability, valence, acousticness, instrumentalness, loudness,
// speechiness, spectral_centroid, spectral_rolloff, spectral_bandwidth,
// duration, sample_rate, num_samples, analysis_version.
type Features map[string]any

// Float returns the named attribute as a float64.
func (f Features) Float(name string) (float64, bool) {
	switch v := f[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int returns the named attribute as an int64. JSON numbers decode as
// float64, so whole-valued floats convert.
func (f Features) Int(name string) (int64, bool) {
	switch v := f[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Str returns the named attribute as a string.
func (f Features) Str(name string) (string, bool) {
	v, ok := f[name].(string)
	return v, ok
}
