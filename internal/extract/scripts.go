package extract

// Page-side reads. Every script is a self-invoking expression returning a
// JSON-serializable value so it runs unchanged on every browser backend.

const imgSourceFn = `const srcOf = (el) => el.getAttribute('data-lazyload-src') || el.getAttribute('data-lazy-src') || el.getAttribute('data-src') || el.currentSrc || el.src || '';`

const scriptTextsJS = `(() => Array.from(document.querySelectorAll('script:not([src])'))
  .map((s) => s.textContent || '')
  .filter((t) => t.length > 64))()`

const titleDOMJS = `(() => {
  const out = [];
  for (const sel of ['.title-text', '.od-pc-offer-title-contain h1', '.d-title', 'h1']) {
    const el = document.querySelector(sel);
    if (el && el.textContent.trim()) out.push(el.textContent.trim());
  }
  const og = document.querySelector('meta[property="og:title"]');
  if (og && og.content) out.push(og.content.trim());
  return out;
})()`

const documentTitleJS = `(() => [document.title.replace(/\s*[-_|].{0,30}$/, '').trim()])()`

const priceDOMJS = `(() => {
  const out = [];
  for (const sel of ['.price-text', '.od-pc-offer-price-contain .price', '[class*="price-info"] [class*="price"]', '.price']) {
    for (const el of document.querySelectorAll(sel)) {
      const t = (el.textContent || '').trim();
      if (t) out.push(t);
    }
  }
  return out;
})()`

const galleryJS = `(() => {
  ` + imgSourceFn + `
  const out = [];
  for (const sel of ['.detail-gallery-turn img', '.od-gallery-list img', '.img-list-wrapper img', '[class*="gallery"] img']) {
    for (const el of document.querySelectorAll(sel)) out.push(srcOf(el));
    if (out.length) break;
  }
  return out;
})()`

const largeImagesJS = `(() => {
  ` + imgSourceFn + `
  const out = [];
  for (const el of document.querySelectorAll('img')) {
    const w = el.naturalWidth || el.width;
    const h = el.naturalHeight || el.height;
    if (w < 300 || h < 300) continue;
    const ratio = w / h;
    if (ratio < 0.5 || ratio > 2) continue;
    const top = el.getBoundingClientRect().top + window.scrollY;
    if (top > 1600) continue;
    out.push(srcOf(el));
  }
  return out;
})()`

const attributesJS = `(() => {
  const out = [];
  const rows = document.querySelectorAll('.offer-attr-item, [class*="attribute-item"], .obj-content tr, .od-pc-attribute .offer-attr-item');
  for (const row of rows) {
    const name = row.querySelector('.offer-attr-item-name, [class*="attr-name"], th, td:first-child');
    const value = row.querySelector('.offer-attr-item-value, [class*="attr-value"], td:last-child');
    if (!name || !value || name === value) continue;
    const n = name.textContent.trim();
    const v = value.textContent.trim();
    if (n && v) out.push({name: n, value: v});
  }
  return out;
})()`

const descriptionSelector = `#detailContentContainer, .od-pc-detail-description, [class*="desc-lazyload-container"], .detail-desc-module`

const descriptionTextJS = `(() => {
  const el = document.querySelector('` + descriptionSelector + `');
  return el ? (el.innerText || el.textContent || '').trim() : '';
})()`

const descriptionHTMLJS = `(() => {
  const el = document.querySelector('` + descriptionSelector + `');
  return el ? el.innerHTML : '';
})()`

const descriptionImagesJS = `(() => {
  ` + imgSourceFn + `
  const root = document.querySelector('` + descriptionSelector + `');
  if (!root) return [];
  return Array.from(root.querySelectorAll('img')).map(srcOf);
})()`

const optionAxesJS = `(() => Array.from(document.querySelectorAll('.sku-prop-module-name, [class*="sku-prop-name"], .prop-name-wrapper'))
  .map((el) => el.textContent.trim().replace(/[:：]$/, ''))
  .filter(Boolean))()`

const skuOverlayJS = `(() => {
  ` + imgSourceFn + `
  const active = document.querySelector('.prop-item.active .prop-name, [class*="prop-item"][class*="active"] [class*="prop-name"]');
  const activeImg = document.querySelector('.prop-item.active img, [class*="prop-item"][class*="active"] img');
  const color = active ? active.textContent.trim() : '';
  const image = activeImg ? srcOf(activeImg) : '';
  const out = [];
  for (const row of document.querySelectorAll('.sku-item-wrapper, [class*="sku-item-wrapper"]')) {
    const name = row.querySelector('.sku-item-name, [class*="sku-item-name"]');
    const price = row.querySelector('.discountPrice-price, [class*="price"]');
    const size = name ? name.textContent.trim() : '';
    if (!size && !color) continue;
    out.push({color: color, size: size, price: price ? price.textContent.trim() : '', image: image});
  }
  return out;
})()`

const reviewsDOMJS = `(() => {
  ` + imgSourceFn + `
  const out = [];
  for (const item of document.querySelectorAll('.evaluate-item, [class*="evaluate-item"], [class*="comment-item"]')) {
    const author = item.querySelector('[class*="user-name"], [class*="nick"]');
    const text = item.querySelector('[class*="evaluate-content"], [class*="content"]');
    const photos = Array.from(item.querySelectorAll('[class*="pic"] img, [class*="photo"] img')).map(srcOf);
    const t = text ? text.textContent.trim() : '';
    if (!t) continue;
    out.push({author: author ? author.textContent.trim() : '', text: t, photo_urls: photos});
  }
  return out;
})()`
