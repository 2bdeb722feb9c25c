package calendar

import (
	"sync"
	"time"

	appLog "turnos/internal/log"
	"turnos/internal/model"
)

// Selection is the observable state of a Controller.
type Selection struct {
	SelectedDate model.Date
	Page         int
	VisibleMonth Month
}

// Controller owns the selected date and the visible page. Selecting a date
// never moves the page and paging never changes the selection.
type Controller struct {
	pager Pager

	mu       sync.Mutex
	selected model.Date
	page     int
	subs     map[int]func(Selection)
	nextSub  int
	pending  []Selection
	draining bool
}

// NewController starts on today's date (per now, in loc) and on the page
// showing it. A nil now uses time.Now; a nil loc uses time.Local.
func NewController(pager Pager, now func() time.Time, loc *time.Location) *Controller {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	today := model.DateOf(now().In(loc))
	return &Controller{
		pager:    pager,
		selected: today,
		page:     pager.InitialPageFor(today),
		subs:     make(map[int]func(Selection)),
	}
}

func (c *Controller) Pager() Pager { return c.pager }

// Selection returns the current state.
func (c *Controller) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) SelectedDate() model.Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

func (c *Controller) CurrentPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// VisibleMonth is always derived from the current page.
func (c *Controller) VisibleMonth() Month {
	return c.pager.ResolveMonth(c.CurrentPage())
}

// SelectDate sets the selected date unconditionally.
func (c *Controller) SelectDate(d model.Date) {
	c.mu.Lock()
	if c.selected == d {
		c.mu.Unlock()
		return
	}
	c.selected = d
	c.publishLocked()
}

// GoToPage clamps index into the pager's domain and makes it current.
func (c *Controller) GoToPage(index int) {
	c.mu.Lock()
	c.goToPageLocked(index)
}

func (c *Controller) GoToPreviousMonth() {
	c.mu.Lock()
	c.goToPageLocked(c.page - 1)
}

func (c *Controller) GoToNextMonth() {
	c.mu.Lock()
	c.goToPageLocked(c.page + 1)
}

// goToPageLocked is entered with mu held and releases it.
func (c *Controller) goToPageLocked(index int) {
	clamped := c.pager.Clamp(index)
	if clamped == c.page {
		c.mu.Unlock()
		appLog.Debug("calendar page unchanged", "requested", index, "page", clamped)
		return
	}
	c.page = clamped
	c.publishLocked()
}

// Subscribe registers fn for every later change. The returned func removes it.
// fn may read the controller; it runs on whichever goroutine drains changes.
func (c *Controller) Subscribe(fn func(Selection)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) snapshotLocked() Selection {
	return Selection{
		SelectedDate: c.selected,
		Page:         c.page,
		VisibleMonth: c.pager.ResolveMonth(c.page),
	}
}

// publishLocked is entered with mu held and releases it. Changes queue in
// order and the first publisher drains them with mu released.
func (c *Controller) publishLocked() {
	c.pending = append(c.pending, c.snapshotLocked())
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.pending) > 0 {
		snap := c.pending[0]
		c.pending = c.pending[1:]
		subs := make([]func(Selection), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(snap)
		}
		c.mu.Lock()
	}
	c.pending = nil
	c.draining = false
	c.mu.Unlock()
}
