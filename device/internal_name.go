package device

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// InternalName is the zigbee2mqtt friendly name of a device, optionally prefixed with a room ("living_room/tap_dial")
type InternalName string

func (n InternalName) Room() string {
	s := strings.Split(string(n), "/")
	room := ""
	if len(s) > 1 {
		room = s[0]
	}
	room = strings.ReplaceAll(room, "_", " ")

	return cases.Title(language.English).String(room)
}

func (n InternalName) Name() string {
	s := strings.Split(string(n), "/")
	name := s[len(s)-1]
	name = strings.ReplaceAll(name, "_", " ")

	return cases.Title(language.English).String(name)
}

// Key is a topic and id safe version of the name
func (n InternalName) Key() string {
	r := strings.NewReplacer("/", "_", " ", "_", "+", "_", "#", "_")
	return strings.ToLower(r.Replace(string(n)))
}

func (n InternalName) String() string {
	return string(n)
}
