package usecase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"vectort/internal/domain"
	"vectort/internal/ports"
)

// pumpAudioChunks forwards microphone audio to the provider until capture
// ends, then half-closes the provider stream.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	grace time.Duration,
) *domain.RecognitionError {
	defer func() { _ = stream.CloseSend() }()

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return &domain.RecognitionError{
					Code:    domain.RecognitionErrorNetwork,
					Message: fmt.Sprintf("failed to stream audio: %v", sendErr),
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				waitGrace(grace)
				return nil
			}
			return &domain.RecognitionError{
				Code:    domain.RecognitionErrorAudioCapture,
				Message: fmt.Sprintf("audio capture error: %v", err),
			}
		}
	}
}

// waitGrace gives the provider time to flush results for the tail of the
// audio before the stream is half-closed.
func waitGrace(grace time.Duration) {
	if grace <= 0 {
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	<-timer.C
}

func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		return <-done
	}
}
