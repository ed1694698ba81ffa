package capture

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// DirCapturer replays the still images of a directory as a camera would,
// one image per tick, looping forever.
type DirCapturer struct {
	paths []string
	fps   int

	frameCh chan *Frame
	stopCh  chan struct{}

	mu      sync.Mutex
	running bool
	stopped bool
	cache   map[string]*image.RGBA
}

// NewDirCapturer creates a capturer over the .png/.jpg/.jpeg files in dir.
func NewDirCapturer(dir string, fps int) (*DirCapturer, error) {
	if fps <= 0 || fps > 60 {
		return nil, fmt.Errorf("fps must be 1-60, got %d", fps)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read capture dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s: %w", dir, os.ErrNotExist)
	}
	sort.Strings(paths)

	return &DirCapturer{
		paths:   paths,
		fps:     fps,
		frameCh: make(chan *Frame, 2),
		stopCh:  make(chan struct{}),
		cache:   make(map[string]*image.RGBA, len(paths)),
	}, nil
}

func (c *DirCapturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.stopped {
		return fmt.Errorf("already running")
	}
	c.running = true
	go c.loop()
	return nil
}

func (c *DirCapturer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
	if !c.running {
		close(c.frameCh)
	}
}

func (c *DirCapturer) Frames() <-chan *Frame {
	return c.frameCh
}

func (c *DirCapturer) loop() {
	ticker := time.NewTicker(time.Second / time.Duration(c.fps))
	defer ticker.Stop()
	defer close(c.frameCh)

	var seq uint64
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			img, err := c.load(c.paths[seq%uint64(len(c.paths))])
			seq++
			if err != nil {
				continue
			}
			f := &Frame{Image: img, Timestamp: time.Now(), Seq: seq}
			select {
			case c.frameCh <- f:
			default:
			}
		}
	}
}

func (c *DirCapturer) load(path string) (*image.RGBA, error) {
	if img, ok := c.cache[path]; ok {
		return img, nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	img, _, err := image.Decode(fh)
	if err != nil {
		return nil, err
	}
	rgba := ToRGBA(img)
	c.cache[path] = rgba
	return rgba, nil
}
