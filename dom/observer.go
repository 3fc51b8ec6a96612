package dom

// Observer collects records for every write under the document root and
// hands them to its callback in one batch per microtask.
type Observer struct {
	doc       *Document
	callback  func([]Record)
	records   []Record
	observing bool
	scheduled bool
}

func (d *Document) NewObserver(callback func([]Record)) *Observer {
	return &Observer{doc: d, callback: callback}
}

// Observe starts recording. Calling it twice does nothing.
func (o *Observer) Observe() {
	if o.observing {
		return
	}
	o.observing = true
	o.doc.observers = append(o.doc.observers, o)
}

// Disconnect stops recording and drops records that were not taken yet.
func (o *Observer) Disconnect() {
	if !o.observing {
		return
	}
	o.observing = false
	o.records = nil
	for i, other := range o.doc.observers {
		if other == o {
			o.doc.observers = append(o.doc.observers[:i], o.doc.observers[i+1:]...)
			break
		}
	}
}

// TakeRecords empties the pending queue and returns what was in it.
func (o *Observer) TakeRecords() []Record {
	records := o.records
	o.records = nil
	return records
}

func (o *Observer) Observing() bool {
	return o.observing
}

func (o *Observer) enqueue(r Record) {
	o.records = append(o.records, r)
	if o.scheduled {
		return
	}
	o.scheduled = true
	o.doc.queueMicrotask(o.deliver)
}

func (o *Observer) deliver() {
	o.scheduled = false
	records := o.TakeRecords()
	if len(records) == 0 {
		return
	}
	o.callback(records)
}
