package audio

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a Memory source whose layout comes from a YAML file. It lets
// the bridge drive a display on machines without host audio bindings.
//
//	default: Speakers
//	devices:
//	  - name: Speakers
//	    sessions:
//	      - {name: Spotify, volume: 0.8, icon: /usr/share/pixmaps/spotify.png}
type Scenario struct {
	*Memory
	path string
}

// OpenScenario loads path. A missing file gives an empty layout that
// fills in once the file is created and Reload is called.
func OpenScenario(path string) (*Scenario, error) {
	s := &Scenario{Memory: NewMemory(), path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the scenario file path.
func (s *Scenario) Path() string {
	return s.path
}

// Reload re-reads the file and replaces the layout.
func (s *Scenario) Reload() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		log.Printf("[audio] Scenario %s does not exist yet", s.path)
		s.Load(Topology{})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read scenario %s: %w", s.path, err)
	}

	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("failed to parse scenario %s: %w", s.path, err)
	}
	s.Load(t)
	log.Printf("[audio] Loaded scenario %s (%d devices)", s.path, len(t.Devices))
	return nil
}
