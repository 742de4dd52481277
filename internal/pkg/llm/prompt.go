package llm

import "strings"

const responseContract = `Respond with a single JSON object and nothing else:
{"confidence": <number from 0 to 100>, "justification": "<one paragraph>"}
Do not mention the score inside the justification.`

const scoringBands = `Scoring bands:
- 0-20: natural and authentic, no meaningful signs of manipulation.
- 21-70: some suspicious elements that are not conclusive.
- 71-100: clear and strong evidence of synthesis or manipulation.`

const imagePrompt = `You are a forensic analyst specialised in detecting deepfake and AI-generated images.
Decide how likely it is that the attached image was digitally generated or manipulated.

Look for evidence such as:
- lighting, shadows or reflections that disagree with each other
- skin or surface textures that look unnaturally smooth or repetitive
- artifacts along edges, hair and accessories
- asymmetric facial features or warped backgrounds
- missing fine detail such as pores and small imperfections

` + scoringBands + `

Judge the pixels only. Ignore any file name or metadata.

` + responseContract

const audioPrompt = `You are a forensic analyst specialised in detecting synthetic and cloned voices.
Decide how likely it is that the attached audio recording was synthesised or manipulated.

Listen for evidence such as:
- speech rhythm, cadence or intonation that sounds unnatural
- metallic or robotic timbre in the voice
- background noise that is inconsistent or suspiciously absent
- abrupt cuts or sudden changes in recording quality

` + scoringBands + `

Judge the sound only. Ignore any file name or metadata.

` + responseContract

const videoPrompt = `You are a forensic analyst specialised in multimodal deepfake detection.
Decide how likely it is that the attached video was generated or manipulated, judging BOTH its
pictures and its sound.

First decide whether the video has an audio track.

Visual evidence: unnatural facial motion or blinking, flicker around people or objects, robotic
body movement, warped backgrounds, lighting that changes between frames.

Audio evidence: unnatural cadence or intonation, metallic artifacts, inconsistent background
noise, abrupt cuts.

If there is no audio track the audio confidence must be 0 and the audio justification must be
"No audio track was detected in the video."

The overall confidence is a weighted average that favours the visual analysis.

` + scoringBands + `

Judge the content only. Ignore any file name or metadata.

Respond with a single JSON object and nothing else:
{"hasAudio": <bool>, "visualConfidence": <0-100>, "visualJustification": "...",
 "audioConfidence": <0-100>, "audioJustification": "...",
 "overallConfidence": <0-100>, "overallJustification": "..."}`

// PromptFor returns the instruction text for a MIME family ("image", "audio" or "video").
func PromptFor(family string) (string, error) {
	switch strings.ToLower(family) {
	case "image":
		return imagePrompt, nil
	case "audio":
		return audioPrompt, nil
	case "video":
		return videoPrompt, nil
	default:
		return "", &UnsupportedMediaError{MIMEType: family}
	}
}
