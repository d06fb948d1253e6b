package analyzer

import "strings"

// DefaultPrompt 默认头版分析提示词，支持 {newspaper_name} 和 {date_str} 占位符
const DefaultPrompt = `请严格按照以下要求分析《{newspaper_name}》{date_str}的头版内容：
1. 核心头条：提取3-5条最重要的新闻，每条包含【标题原文】+ 50-80字的核心内容摘要（务必准确）
2. 关键数据：提取版面中的量化数据（如经济数据、统计数字、赛事成绩等）
3. 核心主题：用50字以内总结当日报纸的核心主题（高度概括）

输出格式必须严格遵循：
=== 《{newspaper_name}》{date_str} 精华内容 ===
【头条新闻1】标题原文
📝 核心内容：[50-80字摘要]

【头条新闻2】标题原文
📝 核心内容：[50-80字摘要]

【头条新闻3】标题原文
📝 核心内容：[50-80字摘要]

📊 关键数据：
• 数据1（注明数据含义）
• 数据2（注明数据含义）

💡 今日核心主题：
[50字以内的总结]
`

// ForeignPrompt 英文报纸使用的提示词：翻译为中文并保留英文标题
const ForeignPrompt = `这是英文报纸《{newspaper_name}》{date_str}的头版扫描图，请阅读英文原文后用中文完成以下任务：
1. 核心头条：提取3-5条最重要的新闻，标题使用「英文原标题 / 中文译文」双语形式，并用50-80字中文概括核心内容（翻译务必准确，人名地名保留英文）
2. 关键数据：提取版面中的量化数据，数值保持原文单位
3. 核心主题：用50字以内的中文总结当日头版的核心主题

输出格式必须严格遵循：
=== 《{newspaper_name}》{date_str} 精华内容 ===
【头条新闻1】English Headline / 中文标题
📝 核心内容：[50-80字中文摘要]

【头条新闻2】English Headline / 中文标题
📝 核心内容：[50-80字中文摘要]

【头条新闻3】English Headline / 中文标题
📝 核心内容：[50-80字中文摘要]

📊 关键数据：
• 数据1（注明数据含义）
• 数据2（注明数据含义）

💡 今日核心主题：
[50字以内的中文总结]
`

// BuildPrompt 生成最终提示词。override 非空时优先使用；
// 否则 foreign 报纸使用双语模板，其余使用默认模板
func BuildPrompt(override string, foreign bool, newspaper, dateStr string) string {
	tpl := override
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultPrompt
		if foreign {
			tpl = ForeignPrompt
		}
	}
	r := strings.NewReplacer("{newspaper_name}", newspaper, "{date_str}", dateStr)
	return r.Replace(tpl)
}
