package store

// unboundedQueue pumps executor messages through a slice-backed buffer
// so producers never block on the writer task. Closing in drains the
// buffer into out, then closes out.
func unboundedQueue() (chan<- execMsg, <-chan execMsg) {
	in := make(chan execMsg)
	out := make(chan execMsg)
	go func() {
		defer close(out)
		var buf []execMsg
		for {
			if len(buf) == 0 {
				msg, ok := <-in
				if !ok {
					return
				}
				buf = append(buf, msg)
				continue
			}
			select {
			case msg, ok := <-in:
				if !ok {
					for _, m := range buf {
						out <- m
					}
					return
				}
				buf = append(buf, msg)
			case out <- buf[0]:
				buf = buf[1:]
			}
		}
	}()
	return in, out
}
