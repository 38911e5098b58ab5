package detector

import "fmt"

// ClassName returns names[id], or "class <id>" when id is out of range.
func ClassName(names []string, id int) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	return fmt.Sprintf("class %d", id)
}

// Label is the overlay caption of a tracked detection: "name #id: conf".
func Label(names []string, tr Track) string {
	return fmt.Sprintf("%s #%d: %.2f", ClassName(names, tr.Detection.ClassID), tr.ID, tr.Detection.Confidence)
}
