package remote

import (
	"crypto/rand"
	"sync"
	"time"
)

// pushChars is ordered by ASCII so keys sort lexicographically by creation time
const pushChars = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// KeyGenerator produces 20-character push ids: 8 characters of millisecond
// timestamp followed by 12 random characters. Ids generated within the same
// millisecond increment the random part so they stay strictly ordered.
type KeyGenerator struct {
	mu       sync.Mutex
	now      func() time.Time
	lastTime int64
	lastRand [12]int
}

// NewKeyGenerator returns a generator driven by the wall clock
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{now: time.Now}
}

var defaultKeys = NewKeyGenerator()

// PushID returns a new key from the process-wide generator
func PushID() string {
	return defaultKeys.Next()
}

// Next returns the next key
func (g *KeyGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	duplicate := ms == g.lastTime
	g.lastTime = ms

	var id [20]byte
	for i := 7; i >= 0; i-- {
		id[i] = pushChars[ms%64]
		ms /= 64
	}

	if !duplicate {
		var buf [12]byte
		if _, err := rand.Read(buf[:]); err != nil {
			panic("remote: crypto/rand failed: " + err.Error())
		}
		for i := range g.lastRand {
			g.lastRand[i] = int(buf[i] % 64)
		}
	} else {
		i := len(g.lastRand) - 1
		for ; i >= 0 && g.lastRand[i] == 63; i-- {
			g.lastRand[i] = 0
		}
		if i >= 0 {
			g.lastRand[i]++
		}
	}

	for i, r := range g.lastRand {
		id[8+i] = pushChars[r]
	}
	return string(id[:])
}
