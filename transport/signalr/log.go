package signalr

import (
	"fmt"

	"github.com/rs/zerolog"
)

// logAdapter writes the library's key/value log lines to zerolog at debug
// level.
type logAdapter struct {
	log zerolog.Logger
}

func (a logAdapter) Log(keyVals ...interface{}) error {
	event := a.log.Debug()
	for i := 0; i+1 < len(keyVals); i += 2 {
		key := fmt.Sprint(keyVals[i])
		if key == zerolog.LevelFieldName {
			continue
		}
		event = event.Interface(key, keyVals[i+1])
	}
	event.Msg("signalr")
	return nil
}
