package relay

// PromptVersion identifies the identification prompt below.
const PromptVersion = "botanist-v1"

// IdentificationPrompt asks the model for one of two raw JSON shapes.
const IdentificationPrompt = `You are an expert botanist. Analyze this plant photo carefully and respond with ONLY a JSON object (no markdown, no code fences, just raw JSON).

If you can identify the plant, return:
{
  "identified": true,
  "common_name": "Common Name",
  "latin_name": "Genus species",
  "confidence": 85,
  "watering": "Brief watering advice (1-2 sentences)",
  "light": "Brief light requirements (1-2 sentences)",
  "soil": "Brief soil advice (1-2 sentences)",
  "extra_tip": "One interesting or important care tip"
}

If no plant is visible or you cannot identify it, return:
{
  "identified": false,
  "reason": "Short explanation of why"
}

Confidence is an integer 0-100 representing how certain you are.`
