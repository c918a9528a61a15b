package db

import "encoding/json"

func RawMessageToMap(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var result map[string]string
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil
	}
	return result
}

func MapToRawMessage(data map[string]string) json.RawMessage {
	if data == nil {
		return nil
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	return json.RawMessage(bytes)
}
