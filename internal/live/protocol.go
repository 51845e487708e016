package live

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Blob is inline media. encoding/json carries Data as base64.
type Blob struct {
	MIMEType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inlineData,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type transcriptionConfig struct{}

type setup struct {
	Model                    string               `json:"model"`
	GenerationConfig         generationConfig     `json:"generationConfig"`
	SystemInstruction        *content             `json:"systemInstruction,omitempty"`
	OutputAudioTranscription *transcriptionConfig `json:"outputAudioTranscription,omitempty"`
	InputAudioTranscription  *transcriptionConfig `json:"inputAudioTranscription,omitempty"`
}

type setupMessage struct {
	Setup setup `json:"setup"`
}

type realtimeInput struct {
	MediaChunks []Blob `json:"mediaChunks"`
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type transcription struct {
	Text string `json:"text"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
}

// SessionOptions configure the setup message sent after dialing.
type SessionOptions struct {
	Model             string
	Voice             string
	SystemInstruction string
}

func encodeSetup(opts SessionOptions) ([]byte, error) {
	msg := setupMessage{Setup: setup{
		Model: opts.Model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		OutputAudioTranscription: &transcriptionConfig{},
		InputAudioTranscription:  &transcriptionConfig{},
	}}
	if opts.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: opts.Voice}},
		}
	}
	if opts.SystemInstruction != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: opts.SystemInstruction}}}
	}
	return json.Marshal(msg)
}

func encodeRealtimeInput(b Blob) ([]byte, error) {
	return json.Marshal(realtimeInputMessage{RealtimeInput: realtimeInput{MediaChunks: []Blob{b}}})
}

// Inbound is a demultiplexed server message. Any combination of fields may
// be set, including none.
type Inbound struct {
	SetupComplete bool
	// Audio holds raw PCM16 payloads in the order they appeared.
	Audio       [][]byte
	Transcripts []Transcript
	Interrupted bool
	GoAway      bool
}

// ParseServerMessage decodes one server frame.
func ParseServerMessage(data []byte) (Inbound, error) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("failed to parse server message: %w", err)
	}

	in := Inbound{
		SetupComplete: msg.SetupComplete != nil,
		GoAway:        msg.GoAway != nil,
	}

	sc := msg.ServerContent
	if sc == nil {
		return in, nil
	}
	in.Interrupted = sc.Interrupted

	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") && len(p.InlineData.Data) > 0 {
				in.Audio = append(in.Audio, p.InlineData.Data)
			}
		}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		in.Transcripts = append(in.Transcripts, Transcript{
			Text:    sc.InputTranscription.Text,
			Final:   sc.TurnComplete,
			Speaker: User,
		})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		in.Transcripts = append(in.Transcripts, Transcript{
			Text:    sc.OutputTranscription.Text,
			Final:   sc.TurnComplete,
			Speaker: Model,
		})
	}
	return in, nil
}
