package answer

import (
	"fmt"
	"strings"

	"github.com/asfc/doc-chat/internal/core/retrieval"
)

const (
	// contextCharLimit はプロンプトへ埋め込むチャンク本文の上限文字数
	contextCharLimit = 1500

	// blockDelimiter はコンテキストブロック間の区切り
	blockDelimiter = "\n\n---\n\n"
)

// systemPromptScored は通常のスコア検索モード用のシステムプロンプト
const systemPromptScored = `You are ASFC, an expert aviation and technical documentation assistant. Answer the user's question directly and thoroughly based on the provided documentation context.

REQUIREMENTS:
- Base your answer STRICTLY on the provided context
- Answer the question asked; stay focused and directly responsive
- Cite specific sources with document name and page number (e.g., "According to Bulletin-79, page 12...")
- Quote exact text when referencing critical procedures or regulations
- If information is incomplete in the context, acknowledge what is missing
- Distinguish between requirements, recommendations, and best practices

FORMATTING:
- Use clear paragraphs (2-4 sentences each)
- Use bullet points or numbered lists for procedures, requirements, or multiple points
- Write in a professional, authoritative style`

// systemPromptFullDocument は全文書モード用のシステムプロンプト。
// 文書全体を対象としたセクション単位の包括的な分析を指示する。
const systemPromptFullDocument = `You are ASFC, an expert aviation and technical documentation assistant. You have been given the COMPLETE text of one bulletin document. Provide a comprehensive, in-depth analysis covering all aspects of it.

ANALYSIS REQUIREMENTS:
- Go through ALL sections and topics in the bulletin systematically
- Start with an overview of the bulletin's purpose, scope, and objectives
- Extract all procedures, step-by-step instructions, requirements, and compliance items
- Include specific numbers, measurements, thresholds, and technical specifications
- Highlight critical safety information, warnings, cautions, and edge cases
- Describe how the bulletin is organized and explain its logical structure
- Connect related concepts and explain the "why" behind procedures, not just the "what"

CITATION AND FORMATTING:
- Reference specific page numbers when citing information
- Quote exact text for critical procedures or regulations
- Use clear headings, bullet points, and paragraphs organized by major topics
- End with a summary of key points and takeaways`

// instructionsScored は通常モードのユーザーメッセージ末尾の指示
const instructionsScored = `Please provide a comprehensive answer based on the context provided above. Cite documents and page numbers for every claim. If the context does not contain enough information to fully answer the question, acknowledge what information is available and what is missing.`

// instructionsFullDocument は全文書モードのユーザーメッセージ末尾の指示
const instructionsFullDocument = `You are analyzing an ENTIRE bulletin document. Provide the MOST COMPREHENSIVE analysis possible - analyze EVERYTHING in this bulletin, organized by major topics and sections, with page references throughout. Do not reduce it to a short summary.`

// BuildMessages は検索結果と質問からLLMへ送るメッセージ列を組み立てる。
// 検索モード（全文書/スコア）に応じてシステムプロンプトと指示を切り替える。
func BuildMessages(question string, result *retrieval.Result) []Message {
	systemPrompt := systemPromptScored
	instructions := instructionsScored
	contextHeader := "Context from documentation:"
	if result.FullDocument() {
		systemPrompt = systemPromptFullDocument
		instructions = instructionsFullDocument
		contextHeader = "Complete Bulletin Documentation:"
	}

	var user strings.Builder
	if len(result.Chunks) > 0 {
		parts := make([]string, 0, len(result.Chunks))
		for _, c := range result.Chunks {
			text := c.Text
			if len(text) > contextCharLimit {
				text = text[:contextCharLimit]
			}
			parts = append(parts, fmt.Sprintf("[From %s, Page %d]\n%s", c.Source, c.Page, text))
		}

		user.WriteString(contextHeader)
		user.WriteString("\n\n")
		user.WriteString(strings.Join(parts, blockDelimiter))
		user.WriteString("\n\n---\n\nQuestion: ")
		user.WriteString(question)
		user.WriteString("\n\n")
		user.WriteString(instructions)
	} else {
		// 文脈なし: 一般知識での回答であることを明示させる
		user.WriteString("Question: ")
		user.WriteString(question)
		user.WriteString("\n\nNote: No relevant context found in the documentation. Please answer based on your general knowledge, and state clearly that the answer is not grounded in the provided documents.")
	}

	return []Message{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: user.String()},
	}
}
