package incidents

import (
	"encoding/json"

	"riverwatch.dev/agent/pkg/model"
)

func toDoc(incident model.Incident) map[string]interface{} {
	raw, _ := json.Marshal(incident)
	var doc map[string]interface{}
	_ = json.Unmarshal(raw, &doc)
	doc["_id"] = incident.IncidentID
	if incident.Rev != "" {
		doc["_rev"] = incident.Rev
	}
	return doc
}

func fromDoc(doc map[string]interface{}) model.Incident {
	raw, _ := json.Marshal(doc)
	var incident model.Incident
	_ = json.Unmarshal(raw, &incident)
	if rev, ok := doc["_rev"].(string); ok {
		incident.Rev = rev
	}
	return incident
}
