package server

import "jordanella.com/linemod/internal/detection"

// FrameMessage is broadcast once per processed frame
type FrameMessage struct {
	Type    string             `json:"type"`
	Frame   int                `json:"frame"`
	Results []detection.Result `json:"results"`
}

// NewFrameMessage wraps the detections of one frame
func NewFrameMessage(frame int, results []detection.Result) FrameMessage {
	if results == nil {
		results = []detection.Result{}
	}
	return FrameMessage{Type: "detections", Frame: frame, Results: results}
}
