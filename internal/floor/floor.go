// Package floor decides who holds the conversational floor. It is a pure
// transition table; the session loop applies the decisions.
package floor

type State int32

const (
    Idle State = iota
    Listening
    Thinking
    Speaking
)

func (s State) String() string {
    switch s {
    case Listening:
        return "listening"
    case Thinking:
        return "thinking"
    case Speaking:
        return "speaking"
    default:
        return "idle"
    }
}

type Trigger int

const (
    SpeechStart  Trigger = iota // VAD rising edge or debug input
    TurnEnd                     // VAD falling edge or heartbeat timeout
    ReplyReady                  // first synthesized chunk is about to go out
    PlaybackDone                // client finished playing the reply
    TurnAborted                 // empty transcript or stage failure
)

func (t Trigger) String() string {
    switch t {
    case SpeechStart:
        return "speech_start"
    case TurnEnd:
        return "turn_end"
    case ReplyReady:
        return "reply_ready"
    case PlaybackDone:
        return "playback_done"
    case TurnAborted:
        return "turn_aborted"
    }
    return "unknown"
}

// Decision represents what the session loop must do for a trigger.
type Decision struct {
    To      State
    Changed bool
    // BargeIn is set when the user spoke over a turn in flight.
    BargeIn bool
    // Interrupt advances the synthesis generation and cancels the pipeline.
    Interrupt bool
    // ClearTranscripts empties both transcript buffers.
    ClearTranscripts bool
    // StartTurn records the turn start and schedules finalization.
    StartTurn bool
}

// Decide maps (state, trigger) to a decision. Triggers that are not valid in
// the current state yield a zero Decision with To == from.
func Decide(from State, t Trigger) Decision {
    switch t {
    case SpeechStart:
        // Hard barge-in: always interrupt, even when nothing is synthesizing.
        return Decision{
            To:               Listening,
            Changed:          true,
            BargeIn:          from == Thinking || from == Speaking,
            Interrupt:        true,
            ClearTranscripts: true,
        }
    case TurnEnd:
        if from == Listening {
            return Decision{To: Thinking, Changed: true, StartTurn: true}
        }
    case ReplyReady:
        if from == Thinking {
            return Decision{To: Speaking, Changed: true}
        }
    case PlaybackDone:
        if from == Speaking {
            return Decision{To: Idle, Changed: true}
        }
    case TurnAborted:
        if from != Idle {
            return Decision{To: Idle, Changed: true}
        }
    }
    return Decision{To: from}
}
