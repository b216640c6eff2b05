package options

// Override pairs an option key with the environment name that forces it.
type Override struct {
	Key string
	Env string
}

// OverrideNames lists the fixed overrides. Only these six settings can be
// forced by the hosting environment.
var OverrideNames = []Override{
	{Key: KeyEnabled, Env: "MAI_ANALYTICS"},
	{Key: KeyEnabledAdmin, Env: "MAI_ANALYTICS_ADMIN"},
	{Key: KeyDebug, Env: "MAI_ANALYTICS_DEBUG"},
	{Key: KeySiteID, Env: "MAI_ANALYTICS_SITE_ID"},
	{Key: KeyURL, Env: "MAI_ANALYTICS_URL"},
	{Key: KeyToken, Env: "MAI_ANALYTICS_TOKEN"},
}

// Overrides holds the defined override values keyed by option key. A key is
// present only when the environment defines it.
type Overrides map[string]any

// Has reports whether key is forced by the environment.
func (o Overrides) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// EnvName returns the environment name that overrides key, or "" when key
// cannot be overridden.
func EnvName(key string) string {
	for _, ov := range OverrideNames {
		if ov.Key == key {
			return ov.Env
		}
	}
	return ""
}
