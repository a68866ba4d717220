package broadphase

// sweepList keeps proxies ordered by (box.Min.X, id)
type sweepList struct {
	head *Proxy
	tail *Proxy
}

func newSweepList() *sweepList {
	return &sweepList{}
}

func (sl *sweepList) Insert(p *Proxy) {
	if sl.head == nil {
		sl.head = p
		sl.tail = p
		return
	}
	q := sl.head
	for q != nil && q.before(p) {
		q = q.next
	}
	// now, q == nil or q sorts after p
	if q == nil { // append at the end of list
		tail := sl.tail
		tail.next = p
		p.prev = tail
		sl.tail = p
		return
	}
	prev := q.prev
	p.next = q
	q.prev = p
	p.prev = prev
	if prev != nil {
		prev.next = p
	} else { // q was the head
		sl.head = p
	}
}

func (sl *sweepList) Remove(p *Proxy) {
	prev := p.prev
	next := p.next
	if prev != nil {
		prev.next = next
		p.prev = nil
	} else {
		sl.head = next
	}
	if next != nil {
		next.prev = prev
		p.next = nil
	} else {
		sl.tail = prev
	}
}

// Move restores the order after p's box changed
func (sl *sweepList) Move(p *Proxy) {
	if next := p.next; next != nil && next.before(p) {
		// moving toward the tail
		prev := p.prev
		if prev != nil {
			prev.next = next
		} else {
			sl.head = next
		}
		next.prev = prev

		prev, next = next, next.next
		for next != nil && next.before(p) {
			prev, next = next, next.next
		}
		// prev < p && (next == nil || p < next)
		prev.next = p
		p.prev = prev
		if next != nil {
			next.prev = p
		} else {
			sl.tail = p
		}
		p.next = next
		return
	}

	if prev := p.prev; prev != nil && p.before(prev) {
		// moving toward the head
		next := p.next
		if next != nil {
			next.prev = prev
		} else {
			sl.tail = prev
		}
		prev.next = next

		next, prev = prev, prev.prev
		for prev != nil && p.before(prev) {
			next, prev = prev, prev.prev
		}
		// (prev == nil || prev < p) && p < next
		next.prev = p
		p.next = next
		if prev != nil {
			prev.next = p
		} else {
			sl.head = p
		}
		p.prev = prev
	}
}
