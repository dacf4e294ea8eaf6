package domain

// CodeTable resolves numeric DMS make/model ids to names. Keys and values are
// uppercase.
type CodeTable struct {
	// Makes maps make id -> make name.
	Makes map[string]string `json:"makes"`
	// ModelsByMake maps make name -> model id -> model name.
	ModelsByMake map[string]map[string]string `json:"models_by_make"`
	// Models maps model id -> model name for ids that are unique across makes.
	Models map[string]string `json:"models"`
}
