package intent

// defaultReconstructionPrompt turns fragmentary speech-to-text output into a
// single first-person sentence. The model is told to admit defeat rather
// than invent meaning.
const defaultReconstructionPrompt = `You help a speech-impaired person communicate. You receive a raw, often fragmentary or garbled speech-to-text transcription of what they tried to say. Reconstruct their most likely intended sentence.

Rules:
- Write exactly one sentence, in the first person, as if the user said it.
- Keep the user's meaning; do not add new requests or details.
- If the transcription is too garbled to reconstruct, output exactly: I didn't catch that.`

// certaintyClause is appended to the reconstruction prompt when the caller
// wants a machine-readable certainty estimate.
const certaintyClause = `

Output strict JSON only, with no surrounding prose or code fences:
{"sentence": "<the reconstructed sentence>", "certainty": <integer 0-100>}`

// defaultUserTemplate wraps the raw transcription for the reconstruction
// call. The {transcription} placeholder is substituted verbatim.
const defaultUserTemplate = `Transcription: {transcription}`

// defaultCompletionPrompt produces the final spoken reply when the
// reconstruction alone is not trusted.
const defaultCompletionPrompt = `You speak on behalf of a speech-impaired person. Given their intended sentence, produce the short, natural first-person utterance they would say out loud. Keep it to one or two sentences. Do not explain, do not add pleasantries they did not ask for.`

// documentQAPromptPrefix constrains answers to retrieved document content.
const documentQAPromptPrefix = `Answer the user's question using ONLY the document excerpts below. If the excerpts do not contain the answer, say you could not find it in the documents. Never make up information.

Documents:
`

// DocumentsEmptyMessage is spoken when document-QA mode is active but
// nothing has been indexed yet.
const DocumentsEmptyMessage = "No documents are indexed yet. Open Documents, add files, and click Vectorize."
