package scanner

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// CommandSource runs an external decoder (for example "zbarcam --raw") that
// owns the camera and prints one code per line. Unsubscribe kills it, which
// releases the camera.
type CommandSource struct {
	name string
	args []string
	log  *zap.Logger

	mu    sync.Mutex
	cmd   *exec.Cmd
	lines *LineSource
	exit  chan struct{}
}

func NewCommandSource(argv []string, log *zap.Logger) (*CommandSource, error) {
	if len(argv) == 0 {
		return nil, errors.New("decoder command is empty")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandSource{name: argv[0], args: argv[1:], log: log}, nil
}

func (s *CommandSource) Subscribe(onDecode func(code string), onError func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return ErrAlreadySubscribed
	}

	cmd := exec.Command(s.name, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("decoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start decoder %s: %w", s.name, err)
	}

	lines := NewLineSource(s.name, stdout)
	if err := lines.Subscribe(onDecode, onError); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	s.cmd = cmd
	s.lines = lines
	s.exit = make(chan struct{})
	s.log.Info("decoder started", zap.String("cmd", s.name), zap.Int("pid", cmd.Process.Pid))

	go s.wait(cmd, lines, onError)
	return nil
}

// wait reaps the process once its output is drained. An exit nobody asked
// for is reported as a decode fault.
func (s *CommandSource) wait(cmd *exec.Cmd, lines *LineSource, onError func(error)) {
	defer close(s.exit)

	<-lines.Done()
	err := cmd.Wait()

	if lines.stopped.Load() {
		return
	}
	if err == nil {
		err = errors.New("decoder exited")
	}
	s.log.Warn("decoder stopped unexpectedly", zap.String("cmd", s.name), zap.Error(err))
	if onError != nil {
		onError(&DecodeError{Source: s.name, Err: err})
	}
}

// Unsubscribe stops delivery, kills the decoder and waits for it to exit.
func (s *CommandSource) Unsubscribe() error {
	s.mu.Lock()
	cmd, lines, exit := s.cmd, s.lines, s.exit
	s.cmd, s.lines, s.exit = nil, nil, nil
	s.mu.Unlock()

	if cmd == nil {
		return nil
	}

	_ = lines.Unsubscribe()
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill decoder: %w", err)
	}
	<-exit

	s.log.Info("decoder stopped", zap.String("cmd", s.name))
	return nil
}
