package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/codiris/voice/internal/observe"
	"github.com/codiris/voice/pkg/mode"
	"github.com/codiris/voice/pkg/provider/llm"
	"github.com/codiris/voice/pkg/provider/stt"
	"github.com/codiris/voice/pkg/provider/tts"
	"github.com/codiris/voice/pkg/usage"
)

// DefaultVoice is used by /api/tts when the request names none.
const DefaultVoice = "alloy"

// RefineTemperature is the sampling temperature of /api/refine.
const RefineTemperature = 0.7

// refinePrompt is the fixed system prompt of /api/refine.
const refinePrompt = "You are a professional communication expert. Your task is to take the user's spoken input " +
	"(which might be messy, informal, or have grammatical errors) and provide a 'good version' of it. " +
	"The good version should be professional, clear, and concise, while maintaining the original intent. " +
	"Only return the refined text, nothing else."

const notConfigured = "OpenAI API key not configured"

// TranscribeResponse is the body returned by /api/transcribe.
type TranscribeResponse struct {
	Text string `json:"text"`
}

// SpeechRequest is the body of POST /api/tts.
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// RefineRequest is the body of POST /api/refine.
type RefineRequest struct {
	Text string `json:"text"`
}

// RefineResponse carries the refined text.
type RefineResponse struct {
	RefinedText string `json:"refinedText"`
}

// EnhanceRequest is the body of POST /api/enhance.
type EnhanceRequest struct {
	Text  string      `json:"text"`
	Mode  string      `json:"mode"`
	Hints usage.Hints `json:"hints"`
}

// EnhanceResponse carries the enhanced text.
type EnhanceResponse struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Transcriber == nil {
		writeError(w, http.StatusInternalServerError, notConfigured)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	text, err := s.cfg.Transcriber.Transcribe(r.Context(), file, header.Filename, contentType, r.FormValue("language"))
	if err != nil && !errors.Is(err, stt.ErrNoSpeech) {
		fail(w, r, http.StatusInternalServerError, "", err)
		return
	}
	writeJSON(w, http.StatusOK, TranscribeResponse{Text: text})
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TTS == nil {
		writeError(w, http.StatusInternalServerError, notConfigured)
		return
	}
	var req SpeechRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	if req.Voice == "" {
		req.Voice = DefaultVoice
	}

	clip, err := s.cfg.TTS.Synthesize(r.Context(), tts.Request{Text: req.Text, Voice: req.Voice})
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "", err)
		return
	}
	ct := clip.ContentType
	if ct == "" {
		ct = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Data)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Refiner == nil {
		writeError(w, http.StatusInternalServerError, notConfigured)
		return
	}
	var req RefineRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}

	creq := llm.UserPrompt(refinePrompt, req.Text)
	creq.Temperature = RefineTemperature
	resp, err := s.cfg.Refiner.Complete(r.Context(), creq)
	if err != nil {
		fail(w, r, http.StatusInternalServerError, "", err)
		return
	}
	if resp == nil {
		fail(w, r, http.StatusInternalServerError, "Failed to refine text", errors.New("empty completion"))
		return
	}
	observe.Logger(r.Context()).Debug("text refined", "model", s.cfg.RefineModel, "tokens", resp.Usage.TotalTokens)
	writeJSON(w, http.StatusOK, RefineResponse{RefinedText: strings.TrimSpace(resp.Content)})
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Enhancer == nil {
		writeError(w, http.StatusInternalServerError, notConfigured)
		return
	}
	var req EnhanceRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "No text provided")
		return
	}
	m := mode.Clean
	if req.Mode != "" {
		var err error
		if m, err = mode.Parse(req.Mode); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if m == mode.Custom {
		writeError(w, http.StatusBadRequest, "custom mode is only available in the apps")
		return
	}

	text := s.cfg.Enhancer.Enhance(r.Context(), req.Text, m, req.Hints)
	writeJSON(w, http.StatusOK, EnhanceResponse{Text: text, Mode: m.String()})
}

func (s *Server) handleModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, mode.All())
}
