package mining

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"queryforge/internal/models"
)

// Miner extracts facts for one artifact family from raw source text.
// Miners use pattern extraction rather than full parsing and tolerate
// partial matches: a miner that fails returns whatever it parsed.
type Miner interface {
	Name() string
	Mine(source string) models.MinedContext
}

// Service runs all miners over the artifact directory and caches the
// combined output behind a single initialization gate. Initialization is
// idempotent: only the first call after construction (or Reset) does work.
type Service struct {
	dir    string
	miners []Miner

	mu      sync.Mutex
	done    bool
	context models.MinedContext
}

// NewService creates a mining service over the given artifact directory
// with the standard four miners.
func NewService(dir string) *Service {
	return &Service{
		dir: dir,
		miners: []Miner{
			NewEntityMiner(),
			NewLinkMiner(),
			NewRouteMiner(),
			NewWorkflowMiner(),
		},
	}
}

// Context returns the mined context, running the miners on first call.
// Never returns nil and never fails: miner errors only degrade plan
// quality, so a broken artifact directory yields an empty context.
func (s *Service) Context() models.MinedContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return s.context
	}

	s.context = s.mineAll()
	s.done = true
	return s.context
}

// Reset clears the cached context so the next Context call re-mines.
// Called when the artifact directory changes on disk.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = false
	s.context = nil
	log.Printf("🔄 [MINING] Context cache reset, will re-mine on next use")
}

func (s *Service) mineAll() models.MinedContext {
	combined := make(models.MinedContext)

	sources := s.readSources()
	if len(sources) == 0 {
		log.Printf("⚠️ [MINING] No source artifacts found under %s", s.dir)
		return combined
	}

	for _, miner := range s.miners {
		for _, src := range sources {
			combined.Merge(miner.Mine(src))
		}
	}

	log.Printf("⛏️ [MINING] Mined facts for %d entities from %d artifacts", len(combined), len(sources))
	return combined
}

// readSources loads every artifact file under the directory. Read failures
// are logged and skipped; mining always proceeds with what it has.
func (s *Service) readSources() []string {
	var sources []string

	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Printf("⚠️ [MINING] Skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".ts", ".js", ".txt", ".src":
		default:
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Printf("⚠️ [MINING] Failed to read %s: %v", path, readErr)
			return nil
		}
		sources = append(sources, string(data))
		return nil
	})
	if err != nil {
		log.Printf("⚠️ [MINING] Failed to walk %s: %v", s.dir, err)
	}

	return sources
}
