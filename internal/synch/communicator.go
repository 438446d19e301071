package synch

import "github.com/kcajmagic/COSC-NACHOS/internal/kthread"

// Communicator lets threads exchange 32-bit words synchronously. Any number
// of threads may be waiting to speak or to listen; each spoken word goes to
// exactly one listener, and at most one word is pending at a time.
type Communicator struct {
	lock         *Lock
	speakerCond  *Condition
	listenerCond *Condition
	speakers     int
	listeners    int
	word         int32
	wordReady    bool
}

// NewCommunicator allocates a communicator on sys.
func NewCommunicator(sys *kthread.System) *Communicator {
	lock := NewLock(sys)
	return &Communicator{
		lock:         lock,
		speakerCond:  NewCondition(lock),
		listenerCond: NewCondition(lock),
	}
}

// Speak waits until a listener is present and no word is pending, then
// publishes word for it.
func (c *Communicator) Speak(word int32) {
	c.lock.Acquire()

	c.speakers++
	for c.wordReady || c.listeners == 0 {
		c.speakerCond.Sleep()
	}
	c.word = word
	c.wordReady = true
	c.listenerCond.WakeAll()
	c.speakers--

	c.lock.Release()
}

// Listen waits for a speaker and returns the word it spoke. Each pass
// through the wait loop wakes every waiting speaker before sleeping.
func (c *Communicator) Listen() int32 {
	c.lock.Acquire()

	c.listeners++
	for !c.wordReady {
		c.speakerCond.WakeAll()
		c.listenerCond.Sleep()
	}
	word := c.word
	c.wordReady = false
	c.listeners--

	c.lock.Release()
	return word
}

// Waiting returns the number of speakers and listeners inside the
// communicator.
func (c *Communicator) Waiting() (speakers, listeners int) {
	return c.speakers, c.listeners
}
